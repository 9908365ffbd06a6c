package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// Value is a sealed interface over storage-ready column values.
// Only the variants in this file implement it, so a type switch over Value
// is exhaustive. Raw input never implements Value; it must pass through the
// coercion layer first.
type Value interface {
	storageValue() // sealed
}

// Text is a string column value. Empty string is a legal stored value for
// text columns (unlike every other kind, where empty input means "omit").
type Text string

func (Text) storageValue() {}

// Int is an integer column value. Covers both 32-bit and 64-bit declared
// columns; range enforcement belongs to the remote store.
type Int int64

func (Int) storageValue() {}

// Float is a double-precision column value.
type Float float64

func (Float) storageValue() {}

// Bool is a boolean column value.
type Bool bool

func (Bool) storageValue() {}

// Decimal is an exact decimal column value. Never constructed from float64.
type Decimal struct {
	D apd.Decimal
}

func (Decimal) storageValue() {}

// NewDecimal parses a locale-invariant decimal string.
func NewDecimal(s string) (Decimal, error) {
	var d Decimal
	if _, _, err := d.D.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// String returns the canonical decimal text.
func (d Decimal) String() string {
	return d.D.Text('f')
}

// Money wraps a decimal amount in its currency carrier.
type Money struct {
	Amount apd.Decimal
}

func (Money) storageValue() {}

// String returns the canonical amount text.
func (m Money) String() string {
	return m.Amount.Text('f')
}

// Time is a timestamp column value.
//
// LocalTag marks values belonging to entities that store wall-clock local
// time next to an explicit time-zone column. Tagged values are NOT converted
// to UTC: the remote store special-cases these entities and a conversion
// here would double-shift them. Untagged values are always UTC.
type Time struct {
	T        time.Time
	LocalTag bool
}

func (Time) storageValue() {}

// Ref is a resolved reference to a record of another entity.
// Name is informational (the matched display name, when resolution went
// through a name probe); Entity and ID identify the target.
type Ref struct {
	Entity string
	ID     uuid.UUID
	Name   string
}

func (Ref) storageValue() {}

// String renders the reference in entity:id form.
func (r Ref) String() string {
	return r.Entity + ":" + r.ID.String()
}

// Option is a resolved option-set (picklist/state/status) value.
type Option int32

func (Option) storageValue() {}

// OptionList is a resolved multi-select option-set value.
// Order is preserved as given; see Equal for the order-sensitivity contract.
type OptionList []int32

func (OptionList) storageValue() {}

// ID is a unique-identifier column value.
type ID uuid.UUID

func (ID) storageValue() {}

// String returns the canonical uuid text.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// PartyList is a sequence of nested records, each materialized against its
// own entity (activity-party style columns).
type PartyList []*TypedRecord

func (PartyList) storageValue() {}

// Equal reports storage equality between two column values.
//
// Semantics mirror the remote store's own comparison: Decimal and Money
// compare numerically (1.0 == 1.00), Time compares by instant and local tag,
// and sequence values (OptionList, PartyList) are ORDER-SENSITIVE - two
// differently ordered lists are a real change, because the store persists
// them as ordered lists. nil equals nil only.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Decimal:
		bv, ok := b.(Decimal)
		return ok && av.D.Cmp(&bv.D) == 0
	case Money:
		bv, ok := b.(Money)
		return ok && av.Amount.Cmp(&bv.Amount) == 0
	case Time:
		bv, ok := b.(Time)
		return ok && av.LocalTag == bv.LocalTag && av.T.Equal(bv.T)
	case Ref:
		bv, ok := b.(Ref)
		// Name is informational and excluded from equality.
		return ok && av.Entity == bv.Entity && av.ID == bv.ID
	case Option:
		bv, ok := b.(Option)
		return ok && av == bv
	case OptionList:
		bv, ok := b.(OptionList)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case ID:
		bv, ok := b.(ID)
		return ok && av == bv
	case PartyList:
		bv, ok := b.(PartyList)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !av[i].Equal(bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsEmptyText reports whether v is a Text holding only whitespace.
// Used by the diffing step's null/empty-string equivalence rule.
func IsEmptyText(v Value) bool {
	t, ok := v.(Text)
	return ok && strings.TrimSpace(string(t)) == ""
}

// Format renders a value for logs and error messages.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Text:
		return fmt.Sprintf("%q", string(val))
	case Decimal:
		return val.String()
	case Money:
		return val.String()
	case Time:
		if val.LocalTag {
			return val.T.Format("2006-01-02 15:04:05") + " (local)"
		}
		return val.T.UTC().Format(time.RFC3339)
	case Ref:
		return val.String()
	case ID:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
