package ib

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// copies --input to --output, like a minifier that changes nothing
const copyMinifier = `cp "$2" "$4"`

func TestMinifyBuiltin(t *testing.T) {
	env := setupTestEnv(t)
	defer teardownTestEnv(t)

	env.createTestFile(t, "public/css/main.css", "body {\n  color: red;\n}\n\n/* note */\n.x {\n  margin: 0;\n}\n")

	result, err := env.config.Minify(context.Background())
	if err != nil {
		t.Fatalf("Minify() error = %v", err)
	}
	if result == nil || !result.OK() || result.Mode != MinifierModeBuiltin {
		t.Fatalf("Minify() result = %+v, want OK builtin result", result)
	}

	if got, want := readTestFile(t, "public/css/main.min.css"), "body{color:red}.x{margin:0}"; got != want {
		t.Errorf("main.min.css = %q, want %q", got, want)
	}
}

func TestMinifyNone(t *testing.T) {
	env := setupTestEnv(t)
	defer teardownTestEnv(t)

	env.config.Minifier.Mode = MinifierModeNone
	env.createTestFile(t, "public/css/main.css", "body{color:red}")

	result, err := env.config.Minify(context.Background())
	if err != nil || result != nil {
		t.Fatalf("Minify() = %v, %v, want nil, nil", result, err)
	}
	if testFileExists("public/css/main.min.css") {
		t.Errorf("main.min.css written in none mode")
	}
}

func TestMinifyRequiresConcatenatedFile(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		env := setupTestEnv(t)
		defer teardownTestEnv(t)

		_, err := env.config.Minify(context.Background())
		var inputErr *InputError
		if !errors.As(err, &inputErr) || inputErr.Kind != InputMissing {
			t.Fatalf("Minify() error = %v, want missing *InputError", err)
		}
		if testFileExists("public/css/main.min.css") {
			t.Errorf("main.min.css written without a concatenated file")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		env := setupTestEnv(t)
		defer teardownTestEnv(t)

		env.createTestFile(t, "public/css/main.css", "")
		_, err := env.config.Minify(context.Background())
		if !errors.Is(err, ErrEmptyConcatenation) {
			t.Fatalf("Minify() error = %v, want ErrEmptyConcatenation", err)
		}
		if testFileExists("public/css/main.min.css") {
			t.Errorf("main.min.css written for an empty concatenated file")
		}
	})

	t.Run("EmptyAllowed", func(t *testing.T) {
		env := setupTestEnv(t)
		defer teardownTestEnv(t)

		env.config.Minifier.AllowFailure = true
		env.createTestFile(t, "public/css/main.css", "")
		result, err := env.config.Minify(context.Background())
		if err != nil || result != nil {
			t.Fatalf("Minify() = %v, %v, want nil, nil", result, err)
		}
		if env.logger.errorCount() != 1 {
			t.Errorf("logged %d errors, want 1", env.logger.errorCount())
		}
	})
}

func TestMinifyExternal(t *testing.T) {
	env := setupTestEnv(t)
	defer teardownTestEnv(t)

	env.createTestFile(t, "public/css/main.css", "body{color:red}")
	fake := env.createFakeMinifier(t, "fake-csso", copyMinifier)
	env.config.Minifier = MinifierConfig{Mode: MinifierModeExternal, Command: []string{fake}}

	result, err := env.config.Minify(context.Background())
	if err != nil {
		t.Fatalf("Minify() error = %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}

	absInput, _ := filepath.Abs(env.config.ConcatenatedPath())
	absOutput, _ := filepath.Abs(env.config.MinifiedPath())
	wantCommand := strings.Join([]string{fake, "--input", absInput, "--output", absOutput}, " ")
	if got := strings.Join(result.Command, " "); got != wantCommand {
		t.Errorf("Command = %q, want %q", got, wantCommand)
	}

	if got := readTestFile(t, "public/css/main.min.css"); got != "body{color:red}" {
		t.Errorf("main.min.css = %q, want %q", got, "body{color:red}")
	}
}

func TestMinifyExternalRunsInJSDir(t *testing.T) {
	env := setupTestEnv(t)
	defer teardownTestEnv(t)

	env.createTestFile(t, "public/css/main.css", "body{color:red}")
	fake := env.createFakeMinifier(t, "pwd-csso", `pwd -P > "$4"`)
	env.config.Minifier = MinifierConfig{Mode: MinifierModeExternal, Command: []string{fake}}

	if _, err := env.config.Minify(context.Background()); err != nil {
		t.Fatalf("Minify() error = %v", err)
	}

	wantDir, err := filepath.Abs(filepath.Join(testRootDir, "public", "js"))
	if err != nil {
		t.Fatalf("Abs() error = %v", err)
	}
	wantDir, err = filepath.EvalSymlinks(wantDir)
	if err != nil {
		t.Fatalf("EvalSymlinks() error = %v", err)
	}
	if got := strings.TrimSpace(readTestFile(t, "public/css/main.min.css")); got != wantDir {
		t.Errorf("minifier working dir = %q, want %q", got, wantDir)
	}
}

func TestMinifyExternalFailure(t *testing.T) {
	tests := []struct {
		name         string
		script       string
		staleOutput  string
		command      func(fake string) []string
		allowFailure bool
		wantExitCode int
		wantStderr   string
		wantErr      bool
	}{
		{
			name:         "NonZeroExit",
			script:       "echo 'Parse error: unexpected }' >&2\nexit 3",
			command:      func(fake string) []string { return []string{fake} },
			wantExitCode: 3,
			wantStderr:   "Parse error: unexpected }",
			wantErr:      true,
		},
		{
			name:         "NonZeroExitAllowed",
			script:       "echo 'Parse error: unexpected }' >&2\nexit 3",
			command:      func(fake string) []string { return []string{fake} },
			allowFailure: true,
			wantExitCode: 3,
			wantStderr:   "Parse error: unexpected }",
			wantErr:      false,
		},
		{
			name:         "NoOutputWritten",
			script:       "exit 0",
			command:      func(fake string) []string { return []string{fake} },
			wantExitCode: 0,
			wantErr:      true,
		},
		{
			name:         "StaleOutput",
			script:       "exit 0",
			staleOutput:  "old bundle",
			command:      func(fake string) []string { return []string{fake} },
			wantExitCode: 0,
			wantErr:      true,
		},
		{
			name:         "Unavailable",
			command:      func(string) []string { return []string{"stylebundle-no-such-minifier"} },
			wantExitCode: -1,
			wantErr:      true,
		},
		{
			name:         "UnavailableAllowed",
			command:      func(string) []string { return []string{"stylebundle-no-such-minifier"} },
			allowFailure: true,
			wantExitCode: -1,
			wantErr:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			defer teardownTestEnv(t)

			env.createTestFile(t, "public/css/main.css", "body{color:red}")
			if tt.staleOutput != "" {
				env.createTestFile(t, "public/css/main.min.css", tt.staleOutput)
			}
			fake := ""
			if tt.script != "" {
				fake = env.createFakeMinifier(t, "fake-csso", tt.script)
			}
			env.config.Minifier = MinifierConfig{
				Mode:         MinifierModeExternal,
				Command:      tt.command(fake),
				AllowFailure: tt.allowFailure,
			}

			result, err := env.config.Minify(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Minify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if result == nil {
				t.Fatal("Minify() result = nil, want a failed result")
			}
			if result.OK() {
				t.Errorf("result.OK() = true, want false")
			}
			if result.ExitCode != tt.wantExitCode {
				t.Errorf("ExitCode = %d, want %d", result.ExitCode, tt.wantExitCode)
			}
			if !strings.Contains(result.Stderr, tt.wantStderr) {
				t.Errorf("Stderr = %q, want it to contain %q", result.Stderr, tt.wantStderr)
			}

			if tt.wantErr {
				var minErr *MinifierError
				if !errors.As(err, &minErr) {
					t.Fatalf("error type = %T, want *MinifierError", err)
				}
				if tt.wantStderr != "" && !strings.Contains(err.Error(), tt.wantStderr) {
					t.Errorf("error %q does not mention stderr %q", err.Error(), tt.wantStderr)
				}
			} else if env.logger.errorCount() == 0 {
				t.Errorf("allowed failure was not logged")
			}

			if tt.staleOutput != "" && testFileExists("public/css/main.min.css") {
				t.Errorf("main.min.css from an earlier run survived a minifier that wrote nothing")
			}
		})
	}
}

func TestMinifyExternalTimeout(t *testing.T) {
	env := setupTestEnv(t)
	defer teardownTestEnv(t)

	env.createTestFile(t, "public/css/main.css", "body{color:red}")
	fake := env.createFakeMinifier(t, "slow-csso", "exec sleep 10")
	env.config.Minifier = MinifierConfig{
		Mode:    MinifierModeExternal,
		Command: []string{fake},
		Timeout: 100 * time.Millisecond,
	}

	start := time.Now()
	result, err := env.config.Minify(context.Background())
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Minify() took %v, want it cut off by the timeout", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Minify() error = %v, want context.DeadlineExceeded", err)
	}
	if result.OK() {
		t.Errorf("result.OK() = true, want false")
	}
}

func TestMinifierErrorMessage(t *testing.T) {
	err := &MinifierError{Result: &MinifyResult{
		Command:  []string{"npx", "csso"},
		ExitCode: 1,
		Stderr:   "  boom\n",
		Err:      errors.New("exit status 1"),
	}}

	want := "error running minifier npx csso (exit status 1): exit status 1: boom"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
