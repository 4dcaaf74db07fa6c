package ib

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// Concatenate reads every input in order and joins them with no separator.
// It stops at the first input that is missing, unreadable or not UTF-8.
func (c *Config) Concatenate() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, path := range c.InputPaths() {
		content, err := c.readInput(path)
		if err != nil {
			return nil, err
		}
		buf.Write(content)
	}

	return buf.Bytes(), nil
}

func (c *Config) readInput(path string) ([]byte, error) {
	content, err := afero.ReadFile(c.FS, path)
	if err != nil {
		kind := InputUnreadable
		if errors.Is(err, fs.ErrNotExist) {
			kind = InputMissing
		}
		return nil, &InputError{Path: path, Kind: kind, Err: err}
	}
	if !utf8.Valid(content) {
		return nil, &InputError{Path: path, Kind: InputEncoding, Err: errors.New("content is not valid UTF-8")}
	}
	return content, nil
}

// WriteConcatenated concatenates the inputs and writes them to ConcatenatedPath.
// Nothing is written unless every input was read successfully.
func (c *Config) WriteConcatenated() ([]byte, error) {
	content, err := c.Concatenate()
	if err != nil {
		return nil, err
	}

	outputFile := c.ConcatenatedPath()
	if err := writeFileAtomic(c.FS, outputFile, content); err != nil {
		return nil, &OutputError{Path: outputFile, Err: err}
	}

	c.Logger.Infof("concatenated %d files into %s (%d bytes)", len(c.Files), outputFile, len(content))
	return content, nil
}

// writeFileAtomic replaces path with content, or leaves it untouched on failure.
func writeFileAtomic(afs afero.Fs, path string, content []byte) error {
	dir := filepath.Dir(path)

	tmp, err := afero.TempFile(afs, dir, tmpFilePattern)
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(content)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = afs.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("error writing temp file: %w", writeErr)
		}
		return fmt.Errorf("error closing temp file: %w", closeErr)
	}

	if err := afs.Chmod(tmpName, 0644); err != nil {
		_ = afs.Remove(tmpName)
		return fmt.Errorf("error setting file mode: %w", err)
	}

	if err := afs.Rename(tmpName, path); err != nil {
		_ = afs.Remove(tmpName)
		return fmt.Errorf("error renaming temp file: %w", err)
	}

	return nil
}
