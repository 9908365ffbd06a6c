package schema

import (
	"golang.org/x/text/cases"

	"github.com/upsync-io/upsync/internal/record"
)

// foldCaser folds option labels for case-insensitive matching.
// Unicode case folding, not ASCII lowercasing: labels are user-facing text.
var foldCaser = cases.Fold()

// Fold normalizes a label for case-insensitive comparison.
func Fold(s string) string {
	return foldCaser.String(s)
}

// ColumnDescriptor identifies one column of an entity. Immutable; owned by
// the Oracle.
type ColumnDescriptor struct {
	Entity      string
	LogicalName string
	Kind        record.Kind

	// RefTargets lists the entities a ref column may point at, in declared
	// order. Reference probes try them in this order.
	RefTargets []string

	// Options is the option catalogue for option/optionlist columns.
	Options *OptionCatalog

	// PartyEntity is the nested entity for partylist columns.
	PartyEntity string

	// IsPrimaryID marks the entity's primary identifier column.
	IsPrimaryID bool

	// IsPrimaryName marks the entity's natural-name column, the default
	// match column for reference resolution.
	IsPrimaryName bool
}

// OptionEntry is one declared option of a catalogue.
type OptionEntry struct {
	Label string
	Value int32

	// State is the state an option belongs to, for status columns.
	// -1 when the option carries no state association.
	State int32
}

// OptionCatalog maps option labels to values and back. Label matching is
// case-folded. For status columns it also records which state each status
// belongs to.
type OptionCatalog struct {
	entries []OptionEntry
	byLabel map[string]int32
	byValue map[int32]OptionEntry
}

// NewOptionCatalog builds a catalogue from declared entries.
func NewOptionCatalog(entries []OptionEntry) *OptionCatalog {
	c := &OptionCatalog{
		entries: entries,
		byLabel: make(map[string]int32, len(entries)),
		byValue: make(map[int32]OptionEntry, len(entries)),
	}
	for _, e := range entries {
		c.byLabel[Fold(e.Label)] = e.Value
		c.byValue[e.Value] = e
	}
	return c
}

// Value resolves a label (case-insensitively) to its option value.
func (c *OptionCatalog) Value(label string) (int32, bool) {
	v, ok := c.byLabel[Fold(label)]
	return v, ok
}

// Label returns the declared label for an option value.
func (c *OptionCatalog) Label(v int32) (string, bool) {
	e, ok := c.byValue[v]
	return e.Label, ok
}

// Has reports whether v is a declared option value.
func (c *OptionCatalog) Has(v int32) bool {
	_, ok := c.byValue[v]
	return ok
}

// StateOf returns the state a status value belongs to.
// ok is false when the status is unknown or carries no state association.
func (c *OptionCatalog) StateOf(status int32) (int32, bool) {
	e, ok := c.byValue[status]
	if !ok || e.State < 0 {
		return 0, false
	}
	return e.State, true
}

// Entries returns the options in declared order.
func (c *OptionCatalog) Entries() []OptionEntry {
	return c.entries
}

// RefSide is one identifying side of a composite/intersect entity.
type RefSide struct {
	Entity string
	Column string
}

// EntityDescriptor describes one record type.
type EntityDescriptor struct {
	Name              string
	PrimaryIDColumn   string
	PrimaryNameColumn string

	// IsIntersect marks many-to-many join entities, identified by the two
	// reference columns in IntersectSides instead of independent attributes.
	IsIntersect    bool
	IntersectSides [2]RefSide

	// HasLocalTime marks entities whose timestamps are wall-clock local
	// time paired with TimeZoneColumn. Their DateTime values are tagged,
	// not converted to UTC.
	HasLocalTime   bool
	TimeZoneColumn string

	// StateColumn/StatusColumn/OwnerColumn name the columns the post-write
	// sequencer peels off the primary payload, when the entity has them.
	StateColumn  string
	StatusColumn string
	OwnerColumn  string

	columns map[string]*ColumnDescriptor
	order   []string
}

// Column returns the descriptor for a logical column name.
func (e *EntityDescriptor) Column(name string) (*ColumnDescriptor, bool) {
	c, ok := e.columns[name]
	return c, ok
}

// Columns returns column names in declared order.
func (e *EntityDescriptor) Columns() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// HasState reports whether the entity carries state/status columns, which
// decides whether lookups get the implicit active filter.
func (e *EntityDescriptor) HasState() bool {
	return e.StateColumn != ""
}
