package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sjc5/kit/pkg/executil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	ib "github.com/sjc5/stylebundle/internal/bundle"
)

const (
	configName = "stylebundle"
	envPrefix  = "STYLEBUNDLE"
	dotEnvFile = ".env"
)

// Config keys. Nested keys map to env vars with "." replaced by "_",
// e.g. minifier.mode -> STYLEBUNDLE_MINIFIER_MODE.
const (
	keyRoot             = "root"
	keyFromExecutable   = "from_executable"
	keyCSSDir           = "css_dir"
	keyJSDir            = "js_dir"
	keyFiles            = "files"
	keyConcatenatedFile = "concatenated_file"
	keyMinifiedFile     = "minified_file"
	keyMinifierMode     = "minifier.mode"
	keyMinifierCommand  = "minifier.command"
	keyAllowFailure     = "minifier.allow_failure"
	keyMinifierTimeout  = "minifier.timeout"
	keyWatchDebounce    = "watch.debounce"
	keyWatchPatterns    = "watch.patterns"
)

// loadConfig resolves the root directory, loads <root>/.env, reads an optional
// stylebundle.{yaml,json,toml} and STYLEBUNDLE_* env vars, then applies flags.
func loadConfig(flags *pflag.FlagSet, configFile string) (*ib.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	flagKeys := map[string]string{
		"root":                   keyRoot,
		"from-executable":        keyFromExecutable,
		"mode":                   keyMinifierMode,
		"allow-minifier-failure": keyAllowFailure,
		"timeout":                keyMinifierTimeout,
	}
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %v", name, err)
			}
		}
	}

	rootDir, err := resolveRootDir(v.GetString(keyRoot), v.GetBool(keyFromExecutable))
	if err != nil {
		return nil, err
	}

	// .env never overrides variables that are already set
	dotEnvPath := filepath.Join(rootDir, dotEnvFile)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, fmt.Errorf("error loading %s: %v", dotEnvPath, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(rootDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %v", err)
		}
	}

	v.SetDefault(keyMinifierMode, ib.MinifierModeExternal)

	config := &ib.Config{
		RootDir:          rootDir,
		CSSDir:           v.GetString(keyCSSDir),
		JSDir:            v.GetString(keyJSDir),
		Files:            v.GetStringSlice(keyFiles),
		ConcatenatedFile: v.GetString(keyConcatenatedFile),
		MinifiedFile:     v.GetString(keyMinifiedFile),
		Minifier: ib.MinifierConfig{
			Mode:         v.GetString(keyMinifierMode),
			Command:      v.GetStringSlice(keyMinifierCommand),
			AllowFailure: v.GetBool(keyAllowFailure),
			Timeout:      v.GetDuration(keyMinifierTimeout),
		},
		Debounce:      v.GetDuration(keyWatchDebounce),
		WatchPatterns: v.GetStringSlice(keyWatchPatterns),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// resolveRootDir mirrors a build script that locates its files relative to
// itself: with fromExecutable, a relative root is joined to the binary's dir.
func resolveRootDir(root string, fromExecutable bool) (string, error) {
	if root == "" {
		root = "."
	}
	if !fromExecutable || filepath.IsAbs(root) {
		return filepath.Clean(root), nil
	}
	execDir, err := executil.GetExecutableDir()
	if err != nil {
		return "", fmt.Errorf("error getting executable dir: %v", err)
	}
	return filepath.Join(execDir, root), nil
}
