package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upsync-io/upsync/internal/schema"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Schema string
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema [entity]",
		Short: "Show compiled schema descriptors",
		Long: `Load and validate the CUE schema, then print its entity descriptors.

With an entity argument, prints only that entity.

Example:
  upsync schema --schema ./schema
  upsync schema --schema ./schema account`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := ""
			if len(args) == 1 {
				entity = args[0]
			}
			return runSchema(opts, entity, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to CUE schema directory (required)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

// columnInfo is the JSON shape of one column descriptor.
type columnInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	RefTargets  []string `json:"ref_targets,omitempty"`
	Options     []string `json:"options,omitempty"`
	PartyEntity string   `json:"party_entity,omitempty"`
	PrimaryID   bool     `json:"primary_id,omitempty"`
	PrimaryName bool     `json:"primary_name,omitempty"`
}

// entityInfo is the JSON shape of one entity descriptor.
type entityInfo struct {
	Name           string       `json:"name"`
	Intersect      bool         `json:"intersect,omitempty"`
	LocalTime      bool         `json:"local_time,omitempty"`
	TimeZoneColumn string       `json:"time_zone_column,omitempty"`
	StateColumn    string       `json:"state_column,omitempty"`
	StatusColumn   string       `json:"status_column,omitempty"`
	OwnerColumn    string       `json:"owner_column,omitempty"`
	Columns        []columnInfo `json:"columns"`
}

func runSchema(opts *SchemaOptions, entity string, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	set, err := schema.Load(opts.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	names := set.Entities()
	if entity != "" {
		if _, err := set.Entity(cmd.Context(), entity); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("unknown entity %q", entity), err)
		}
		names = []string{entity}
	}

	infos := make([]entityInfo, 0, len(names))
	for _, name := range names {
		info, err := describeEntity(cmd.Context(), set, name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to describe entity", err)
		}
		infos = append(infos, info)
	}

	return out.Success(infos, func(w io.Writer) {
		writeSchemaText(w, infos)
	})
}

func describeEntity(ctx context.Context, set *schema.Set, name string) (entityInfo, error) {
	ent, err := set.Entity(ctx, name)
	if err != nil {
		return entityInfo{}, err
	}
	info := entityInfo{
		Name:           ent.Name,
		Intersect:      ent.IsIntersect,
		LocalTime:      ent.HasLocalTime,
		TimeZoneColumn: ent.TimeZoneColumn,
		StateColumn:    ent.StateColumn,
		StatusColumn:   ent.StatusColumn,
		OwnerColumn:    ent.OwnerColumn,
	}
	for _, colName := range ent.Columns() {
		col, ok := ent.Column(colName)
		if !ok {
			continue
		}
		ci := columnInfo{
			Name:        col.LogicalName,
			Kind:        string(col.Kind),
			RefTargets:  col.RefTargets,
			PartyEntity: col.PartyEntity,
			PrimaryID:   col.IsPrimaryID,
			PrimaryName: col.IsPrimaryName,
		}
		if col.Options != nil {
			for _, e := range col.Options.Entries() {
				ci.Options = append(ci.Options, fmt.Sprintf("%s=%d", e.Label, e.Value))
			}
		}
		info.Columns = append(info.Columns, ci)
	}
	return info, nil
}

func writeSchemaText(w io.Writer, infos []entityInfo) {
	for _, info := range infos {
		fmt.Fprintf(w, "%s", info.Name)
		var traits []string
		if info.Intersect {
			traits = append(traits, "intersect")
		}
		if info.LocalTime {
			traits = append(traits, "local-time")
		}
		if len(traits) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(traits, ", "))
		}
		fmt.Fprintln(w)
		for _, col := range info.Columns {
			fmt.Fprintf(w, "  %s %s", col.Name, col.Kind)
			switch {
			case col.PrimaryID:
				fmt.Fprint(w, " [primary id]")
			case col.PrimaryName:
				fmt.Fprint(w, " [primary name]")
			}
			if len(col.RefTargets) > 0 {
				fmt.Fprintf(w, " -> %s", strings.Join(col.RefTargets, "|"))
			}
			if len(col.Options) > 0 {
				fmt.Fprintf(w, " {%s}", strings.Join(col.Options, ", "))
			}
			fmt.Fprintln(w)
		}
	}
}
