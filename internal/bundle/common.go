package ib

import (
	"path/filepath"
	"time"
)

const (
	defaultCSSDir           = "public/css"
	defaultJSDir            = "public/js"
	defaultConcatenatedFile = "main.css"
	defaultMinifiedFile     = "main.min.css"
	defaultDebounce         = 50 * time.Millisecond
	minifierWaitDelay       = 2 * time.Second // after cancellation, for stray children holding stderr
	tmpFilePattern          = ".stylebundle-*.tmp"
	cssMediaType            = "text/css"
)

const (
	MinifierModeExternal = "external"
	MinifierModeBuiltin  = "builtin"
	MinifierModeNone     = "none"
)

// DefaultFiles is the stylesheet order used when Config.Files is empty.
// Later files override earlier rules, so the order must not change casually.
var DefaultFiles = []string{
	"fontawesome.min.css",                // Font Awesome
	"solid.min.css",                      // Font Awesome
	"tooltipster.bundle.min.css",         // Tooltipster
	"tooltipster-sideTip-shadow.min.css", // Tooltipster
	"alpha.css",                          // HTML5 Up Alpha template
	"hanabi.css",                         // site-specific
}

// DefaultMinifierCommand runs csso from the JS directory's local install.
var DefaultMinifierCommand = []string{"npx", "csso"}

type cleanDirs struct {
	Root string
	CSS  string
	JS   string
}

func (c *Config) getCleanRootDir() string {
	return filepath.Clean(c.RootDir)
}

func (c *Config) getCleanDirs() cleanDirs {
	root := c.getCleanRootDir()
	return cleanDirs{
		Root: root,
		CSS:  filepath.Join(root, filepath.Clean(c.CSSDir)),
		JS:   filepath.Join(root, filepath.Clean(c.JSDir)),
	}
}

// ConcatenatedPath is where the unminified bundle is written.
func (c *Config) ConcatenatedPath() string {
	return filepath.Join(c.getCleanDirs().CSS, c.ConcatenatedFile)
}

// MinifiedPath is where the minified bundle is written.
func (c *Config) MinifiedPath() string {
	return filepath.Join(c.getCleanDirs().CSS, c.MinifiedFile)
}

// InputPaths returns the full path of every input, in bundle order.
func (c *Config) InputPaths() []string {
	cssDir := c.getCleanDirs().CSS
	paths := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		paths = append(paths, filepath.Join(cssDir, f))
	}
	return paths
}
