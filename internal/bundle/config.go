package ib

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sjc5/kit/pkg/colorlog"
	"github.com/spf13/afero"
)

// Logger is the subset of colorlog's logger the bundler writes to.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

type Config struct {
	/*
		RootDir is the directory that CSSDir and JSDir are resolved against.
		It is usually the site's root (the directory that holds "public").
		We run filepath.Clean on it, so leaving it blank means ".".
	*/
	RootDir string

	// CSSDir holds both the inputs and the two outputs. Defaults to "public/css".
	CSSDir string

	// JSDir is the working directory of the external minifier, i.e. the
	// directory whose node_modules provides it. Defaults to "public/js".
	JSDir string

	// Files are the inputs, relative to CSSDir, in bundle order.
	// Defaults to DefaultFiles.
	Files []string

	ConcatenatedFile string // defaults to "main.css"
	MinifiedFile     string // defaults to "main.min.css"

	Minifier MinifierConfig

	// Debounce is the quiet period Watch waits for before rebuilding.
	Debounce time.Duration

	// WatchPatterns are extra glob patterns (relative to CSSDir, "**"
	// supported) that also trigger a rebuild in Watch, e.g. "partials/**/*.css".
	// The inputs themselves are always watched.
	WatchPatterns []string

	// FS is used for every read and write the bundler does itself.
	// Defaults to the OS filesystem. The external minifier always sees the
	// real disk, so only use a non-OS FS together with builtin or none mode.
	FS afero.Fs

	Logger Logger

	initOnce sync.Once
	buildMu  sync.Mutex
}

type MinifierConfig struct {
	// Mode is one of "external" (default), "builtin" or "none".
	Mode string

	// Command is the external minifier invocation before the
	// "--input <path> --output <path>" arguments. Defaults to "npx csso".
	Command []string

	// AllowFailure logs a failed minifier instead of failing the build.
	// The concatenated file is still written either way.
	AllowFailure bool

	// Timeout bounds the external minifier. Zero means wait indefinitely.
	Timeout time.Duration
}

// NewConfig returns a Config rooted at rootDir with every default filled in.
func NewConfig(rootDir string) *Config {
	c := &Config{RootDir: rootDir}
	c.init()
	return c
}

func (c *Config) init() {
	c.initOnce.Do(func() {
		if c.CSSDir == "" {
			c.CSSDir = defaultCSSDir
		}
		if c.JSDir == "" {
			c.JSDir = defaultJSDir
		}
		if len(c.Files) == 0 {
			c.Files = append([]string(nil), DefaultFiles...)
		}
		if c.ConcatenatedFile == "" {
			c.ConcatenatedFile = defaultConcatenatedFile
		}
		if c.MinifiedFile == "" {
			c.MinifiedFile = defaultMinifiedFile
		}
		if c.Minifier.Mode == "" {
			c.Minifier.Mode = MinifierModeExternal
		}
		if len(c.Minifier.Command) == 0 && c.Minifier.Mode == MinifierModeExternal {
			c.Minifier.Command = append([]string(nil), DefaultMinifierCommand...)
		}
		if c.Debounce <= 0 {
			c.Debounce = defaultDebounce
		}
		if c.FS == nil {
			c.FS = afero.NewOsFs()
		}
		if c.Logger == nil {
			c.Logger = &colorlog.Log{}
		}
	})
}

// Validate fills in defaults and reports the first problem with the config.
func (c *Config) Validate() error {
	c.init()

	seen := make(map[string]bool, len(c.Files))
	for _, f := range c.Files {
		if err := validateRelName("Files", f); err != nil {
			return err
		}
		clean := filepath.Clean(f)
		if seen[clean] {
			return &ConfigError{Field: "Files", Msg: fmt.Sprintf("duplicate input %q", f)}
		}
		seen[clean] = true
	}

	outputs := []struct{ field, name string }{
		{"ConcatenatedFile", c.ConcatenatedFile},
		{"MinifiedFile", c.MinifiedFile},
	}
	for _, o := range outputs {
		if err := validateRelName(o.field, o.name); err != nil {
			return err
		}
		if seen[filepath.Clean(o.name)] {
			return &ConfigError{Field: o.field, Msg: fmt.Sprintf("%q is also an input file", o.name)}
		}
	}
	if filepath.Clean(c.ConcatenatedFile) == filepath.Clean(c.MinifiedFile) {
		return &ConfigError{Field: "MinifiedFile", Msg: "must differ from ConcatenatedFile"}
	}

	switch c.Minifier.Mode {
	case MinifierModeExternal:
		if len(c.Minifier.Command) == 0 || strings.TrimSpace(c.Minifier.Command[0]) == "" {
			return &ConfigError{Field: "Minifier.Command", Msg: "external mode needs a command"}
		}
	case MinifierModeBuiltin, MinifierModeNone:
	default:
		return &ConfigError{Field: "Minifier.Mode", Msg: fmt.Sprintf("unknown mode %q", c.Minifier.Mode)}
	}

	for _, p := range c.WatchPatterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return &ConfigError{Field: "WatchPatterns", Msg: fmt.Sprintf("bad pattern %q", p)}
		}
	}

	if c.Minifier.Timeout < 0 {
		return &ConfigError{Field: "Minifier.Timeout", Msg: "must not be negative"}
	}

	return nil
}

// validateRelName rejects names that are empty, absolute, or climb out of CSSDir.
func validateRelName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return &ConfigError{Field: field, Msg: "empty file name"}
	}
	if filepath.IsAbs(name) {
		return &ConfigError{Field: field, Msg: fmt.Sprintf("%q must be relative to the CSS directory", name)}
	}
	clean := filepath.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return &ConfigError{Field: field, Msg: fmt.Sprintf("%q escapes the CSS directory", name)}
	}
	return nil
}
