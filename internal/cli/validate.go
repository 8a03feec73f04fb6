package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lockstep/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Path     string         `json:"path,omitempty"`
	Problems []string       `json:"problems,omitempty"`
	Config   *config.Config `json:"config,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a config file and print the effective config",
		Long: `Validate a lockstep config file against the config schema.

The file is layered over the defaults, LOCKSTEP_* environment variables
are applied, and the result is checked. On success the effective config
is printed. The file defaults to --config.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Command error (file unreadable, not YAML, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating %q", path)

	cfg, err := config.Load(path)
	if err != nil {
		var ve *config.ValidationError
		if !errors.As(err, &ve) {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		result := ValidationResult{Path: path, Problems: ve.Problems}
		failure := NewExitError(ExitFailure, fmt.Sprintf("config has %d problem(s)", len(ve.Problems)))
		return formatter.Result(result, ErrCodeConfig, failure, func(w io.Writer) {
			fmt.Fprintln(w, "✗ Config is invalid")
			for _, p := range ve.Problems {
				fmt.Fprintf(w, "  %s\n", p)
			}
		})
	}

	result := ValidationResult{Valid: true, Path: path, Config: &cfg}
	return formatter.Result(result, "", nil, func(w io.Writer) {
		fmt.Fprintln(w, "✓ Config is valid")
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(w, "  (cannot render: %v)\n", err)
			return
		}
		fmt.Fprintln(w)
		_, _ = w.Write(out)
	})
}
