package stylebundle

import (
	"context"

	ib "github.com/sjc5/stylebundle/internal/bundle"
)

type Config = ib.Config
type MinifierConfig = ib.MinifierConfig
type Result = ib.Result
type MinifyResult = ib.MinifyResult
type OnBuildFunc = ib.OnBuildFunc

type ConfigError = ib.ConfigError
type InputError = ib.InputError
type InputErrorKind = ib.InputErrorKind
type OutputError = ib.OutputError
type MinifierError = ib.MinifierError

type StyleBundle struct {
	Config *ib.Config
}

// Build concatenates the inputs in order, writes the concatenated file and
// then minifies it.
func (s StyleBundle) Build(ctx context.Context) (*Result, error) {
	return s.Config.Build(ctx)
}

// Concatenate returns the ordered join of the inputs without writing anything.
func (s StyleBundle) Concatenate() ([]byte, error) {
	return s.Config.Concatenate()
}
func (s StyleBundle) WriteConcatenated() ([]byte, error) {
	return s.Config.WriteConcatenated()
}
func (s StyleBundle) Minify(ctx context.Context) (*MinifyResult, error) {
	return s.Config.Minify(ctx)
}
func (s StyleBundle) Watch(ctx context.Context, onBuild OnBuildFunc) error {
	return s.Config.Watch(ctx, onBuild)
}
func (s StyleBundle) InputPaths() []string {
	return s.Config.InputPaths()
}

func New(config *ib.Config) *StyleBundle {
	if config == nil {
		config = ib.NewConfig(".")
	}
	return &StyleBundle{
		Config: config,
	}
}

const MinifierModeExternal = ib.MinifierModeExternal
const MinifierModeBuiltin = ib.MinifierModeBuiltin
const MinifierModeNone = ib.MinifierModeNone

const InputMissing = ib.InputMissing
const InputUnreadable = ib.InputUnreadable
const InputEncoding = ib.InputEncoding

var ErrEmptyConcatenation = ib.ErrEmptyConcatenation
var DefaultFiles = ib.DefaultFiles
var DefaultMinifierCommand = ib.DefaultMinifierCommand
var NewConfig = ib.NewConfig
