package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/upsync-io/upsync/internal/coerce"
	"github.com/upsync-io/upsync/internal/materialize"
	"github.com/upsync-io/upsync/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
	Entity string
	Ignore []string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <records-file>",
		Short: "Dry-run coercion without touching the store",
		Long: `Coerce a record file against the schema without any store access.

Reference columns are carried by name instead of resolved, so no lookups
happen. Reports the externalized value of every record, or its coercion
errors.

Example:
  upsync validate --schema ./schema records.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to CUE schema directory (required)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "target entity (overrides the record file)")
	cmd.Flags().StringSliceVar(&opts.Ignore, "ignore", nil, "property names to skip")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

// recordCheck is the JSON shape of one record's dry-run result.
type recordCheck struct {
	Index  int            `json:"index"`
	Valid  bool           `json:"valid"`
	Values map[string]any `json:"values,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func runValidate(opts *ValidateOptions, recordsPath string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	oracle, err := schema.Load(opts.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	file, err := LoadRecordFile(recordsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load records", err)
	}
	entity := file.Entity
	if opts.Entity != "" {
		entity = opts.Entity
	}
	if entity == "" {
		return NewExitError(ExitCommandError, "no target entity: set --entity or the file's entity field")
	}

	mat := materialize.New(oracle, nil)
	mopts := materialize.Options{Ignore: opts.Ignore, Offline: true}

	ctx := cmd.Context()
	checks := make([]recordCheck, 0, len(file.Records))
	failed := 0
	for i, raw := range file.Records {
		check := recordCheck{Index: i}
		rec, err := mat.Materialize(ctx, raw, entity, mopts)
		if err == nil {
			check.Values, err = coerce.External(ctx, oracle, rec)
		}
		if err != nil {
			check.Error = err.Error()
			failed++
		} else {
			check.Valid = true
		}
		checks = append(checks, check)
	}

	if err := out.Success(checks, func(w io.Writer) {
		writeValidateText(w, checks)
	}); err != nil {
		return err
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d records invalid", failed, len(checks)))
	}
	return nil
}

func writeValidateText(w io.Writer, checks []recordCheck) {
	for _, c := range checks {
		if !c.Valid {
			fmt.Fprintf(w, "[%d] invalid: %s\n", c.Index, c.Error)
			continue
		}
		fmt.Fprintf(w, "[%d] ok\n", c.Index)
		names := make([]string, 0, len(c.Values))
		for name := range c.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "    %s: %v\n", name, c.Values[name])
		}
	}
}
