package ib

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

type Result struct {
	ConcatenatedPath string
	MinifiedPath     string // empty when minification was skipped
	Bytes            int
	Digest           string // short sha256 of the concatenated CSS
	Minify           *MinifyResult
	Duration         time.Duration
}

type buildError struct {
	step string
	err  error
}

func (e buildError) Error() string {
	return fmt.Sprintf("error during build step %s: %v", e.step, e.err)
}

func (e buildError) Unwrap() error { return e.err }

// Build runs the whole pipeline: read every input in order, write the
// concatenated file, then minify it. Concurrent calls on the same Config run
// one after another.
func (c *Config) Build(ctx context.Context) (*Result, error) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	a := time.Now()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	content, err := c.WriteConcatenated()
	if err != nil {
		return nil, buildError{step: "concatenate", err: err}
	}

	result := &Result{
		ConcatenatedPath: c.ConcatenatedPath(),
		Bytes:            len(content),
		Digest:           shortDigest(content),
	}

	minifyResult, err := c.Minify(ctx)
	result.Minify = minifyResult
	if err != nil {
		return result, buildError{step: "minify", err: err}
	}
	if minifyResult != nil && minifyResult.OK() {
		result.MinifiedPath = c.MinifiedPath()
	}

	result.Duration = time.Since(a)
	c.Logger.Infof("build complete in %v (digest %s)", result.Duration, result.Digest)
	return result, nil
}

func shortDigest(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)[:12]
}
