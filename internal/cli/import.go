package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/upsync-io/upsync/internal/reconcile"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/resolve"
	"github.com/upsync-io/upsync/internal/schema"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Schema    string
	Database  string
	Entity    string
	BatchSize int
	Caller    string

	Upsert     bool
	CreateOnly bool
	NoCreate   bool
	NoUpdate   bool
	ReplaceAll bool

	Match   []string // each entry is one fallback column set, comma-separated
	Ignore  []string
	MatchBy []string // each entry is Column=TargetColumn
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <records-file>",
		Short: "Reconcile records against the store",
		Long: `Reconcile a record file against the store.

Each record is coerced against the schema, matched per the resolution
flags, and written. Writes for the same caller identity are batched.
Pass "-" to read records from stdin.

Example:
  upsync import --schema ./schema --db ./store.db records.yaml
  upsync import --schema ./schema --db ./store.db --upsert --batch-size 50 records.yaml
  upsync import --schema ./schema --db ./store.db --match Name --match AccountNumber records.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to CUE schema directory (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite store (required)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "target entity (overrides the record file)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 1, "writes per batch; 1 dispatches directly")
	cmd.Flags().StringVar(&opts.Caller, "caller-id", "", "identity the writes execute under")
	cmd.Flags().BoolVar(&opts.Upsert, "upsert", false, "use the store's native upsert")
	cmd.Flags().BoolVar(&opts.CreateOnly, "create-only", false, "create without existence lookup")
	cmd.Flags().BoolVar(&opts.NoCreate, "no-create", false, "never create; skip unmatched records")
	cmd.Flags().BoolVar(&opts.NoUpdate, "no-update", false, "never update; skip matched records")
	cmd.Flags().BoolVar(&opts.ReplaceAll, "replace-all", false, "full overwrite; skip the existence read")
	cmd.Flags().StringArrayVar(&opts.Match, "match", nil, "fallback match column set, comma-separated (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Ignore, "ignore", nil, "property names to skip")
	cmd.Flags().StringArrayVar(&opts.MatchBy, "match-by", nil, "reference match column override, Column=TargetColumn (repeatable)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, recordsPath string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	mode := resolve.Mode{
		Upsert:     opts.Upsert,
		CreateOnly: opts.CreateOnly,
		NoCreate:   opts.NoCreate,
		NoUpdate:   opts.NoUpdate,
		ReplaceAll: opts.ReplaceAll,
	}
	criteria := parseCriteria(opts.Match)
	if err := resolve.Validate(mode, criteria); err != nil {
		return WrapExitError(ExitCommandError, "unsupported flag combination", err)
	}
	matchBy, err := parseMatchBy(opts.MatchBy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --match-by", err)
	}

	slog.Info("loading schema", "dir", opts.Schema)
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

	slog.Info("opening store", "path", opts.Database)
	store, err := remote.OpenSQLite(opts.Database, oracle)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	raws := file.Records
	tasks := make([]reconcile.Task, len(raws))
	for i, raw := range raws {
		tasks[i] = reconcile.Task{
			Entity:   entity,
			Raw:      raw,
			Mode:     mode,
			Criteria: criteria,
			Ignore:   opts.Ignore,
			MatchBy:  matchBy,
			Caller:   remote.Caller(opts.Caller),
		}
	}

	runner := reconcile.NewRunner(oracle, store, opts.BatchSize)
	outcomes, summary, err := runner.Run(cmd.Context(), tasks)
	if err != nil {
		return WrapExitError(ExitFailure, "reconciliation aborted", err)
	}

	if err := out.Success(importReport(outcomes, summary), func(w io.Writer) {
		writeImportText(w, outcomes, summary)
	}); err != nil {
		return err
	}

	if !summary.Clean() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d records failed", summary.Failed+summary.Errored, summary.Total))
	}
	return nil
}

// parseCriteria splits repeated --match values into ordered fallback
// column sets.
func parseCriteria(match []string) resolve.Criteria {
	var criteria resolve.Criteria
	for _, set := range match {
		var cols []string
		for _, c := range strings.Split(set, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) > 0 {
			criteria = append(criteria, cols)
		}
	}
	return criteria
}

// parseMatchBy parses repeated Column=TargetColumn overrides.
func parseMatchBy(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		col, target, ok := strings.Cut(p, "=")
		if !ok || col == "" || target == "" {
			return nil, fmt.Errorf("expected Column=TargetColumn, got %q", p)
		}
		m[col] = target
	}
	return m, nil
}

// outcomeReport is the JSON shape of one record's outcome.
type outcomeReport struct {
	Index  int      `json:"index"`
	Entity string   `json:"entity"`
	ID     string   `json:"id,omitempty"`
	Action string   `json:"action"`
	Errors []string `json:"errors,omitempty"`
}

type importReportData struct {
	Outcomes []outcomeReport   `json:"outcomes"`
	Summary  reconcile.Summary `json:"summary"`
}

func importReport(outcomes []*reconcile.Outcome, summary reconcile.Summary) importReportData {
	data := importReportData{Summary: summary}
	for _, o := range outcomes {
		r := outcomeReport{
			Index:  o.Index,
			Entity: o.Entity,
			Action: string(o.Action),
		}
		if o.ID != uuid.Nil {
			r.ID = o.ID.String()
		}
		for _, e := range o.Errs {
			r.Errors = append(r.Errors, e.Error())
		}
		data.Outcomes = append(data.Outcomes, r)
	}
	return data
}

func writeImportText(w io.Writer, outcomes []*reconcile.Outcome, summary reconcile.Summary) {
	for _, o := range outcomes {
		id := ""
		if o.ID != uuid.Nil {
			id = " " + o.ID.String()
		}
		fmt.Fprintf(w, "[%d] %s %s%s\n", o.Index, o.Entity, o.Action, id)
		for _, e := range o.Errs {
			fmt.Fprintf(w, "    error: %v\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d records: %d created, %d updated, %d unchanged, %d skipped, %d failed",
		summary.Total, summary.Created, summary.Updated, summary.Unchanged, summary.Skipped, summary.Failed)
	if summary.Errored > 0 {
		fmt.Fprintf(w, ", %d with errors", summary.Errored)
	}
	fmt.Fprintln(w)
}
