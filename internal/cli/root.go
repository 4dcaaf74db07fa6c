package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ib "github.com/sjc5/stylebundle/internal/bundle"
)

// Version is set at link time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "stylebundle",
		Short: "Concatenate and minify a site's stylesheets",
		Long: `stylebundle concatenates an ordered list of CSS files into one file and
then minifies it, by default with "npx csso" run from the JS directory.
Running it without a subcommand is the same as "stylebundle build".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default <root>/stylebundle.yaml)")
	pf.String("root", "", "site root that css_dir and js_dir are relative to (default \".\")")
	pf.Bool("from-executable", false, "resolve --root relative to this executable's directory")
	pf.String("mode", "", "minifier mode: external, builtin or none")
	pf.Bool("allow-minifier-failure", false, "report success even when the minifier fails")
	pf.Duration("timeout", 0, "kill the external minifier after this long (0 waits forever)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "build",
			Short: "Concatenate the inputs and minify the result",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBuild(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "concat",
			Short: "Only write the concatenated file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				config, err := loadConfig(cmd.Flags(), opts.configFile)
				if err != nil {
					return err
				}
				content, err := config.WriteConcatenated()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", config.ConcatenatedPath(), len(content))
				return nil
			},
		},
		&cobra.Command{
			Use:   "minify",
			Short: "Only minify the existing concatenated file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				config, err := loadConfig(cmd.Flags(), opts.configFile)
				if err != nil {
					return err
				}
				result, err := config.Minify(cmd.Context())
				if err != nil {
					return err
				}
				printMinifyResult(cmd, config, result)
				return nil
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Build, then rebuild whenever an input changes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				config, err := loadConfig(cmd.Flags(), opts.configFile)
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return config.Watch(ctx, nil)
			},
		},
		&cobra.Command{
			Use:   "files",
			Short: "Print the inputs in bundle order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				config, err := loadConfig(cmd.Flags(), opts.configFile)
				if err != nil {
					return err
				}
				for i, p := range config.InputPaths() {
					fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i+1, p)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "stylebundle %s\n", Version)
			},
		},
	)

	return rootCmd
}

func runBuild(cmd *cobra.Command, opts *rootOptions) error {
	config, err := loadConfig(cmd.Flags(), opts.configFile)
	if err != nil {
		return err
	}
	result, err := config.Build(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, %s)\n", result.ConcatenatedPath, result.Bytes, result.Digest)
	printMinifyResult(cmd, config, result.Minify)
	return nil
}

func printMinifyResult(cmd *cobra.Command, config *ib.Config, result *ib.MinifyResult) {
	out := cmd.OutOrStdout()
	switch {
	case result == nil:
		fmt.Fprintln(out, "minification skipped")
	case result.OK():
		fmt.Fprintf(out, "%s (%s, %v)\n", config.MinifiedPath(), result.Mode, result.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(out, "minification failed: %v\n", result.Err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func Execute() error {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
