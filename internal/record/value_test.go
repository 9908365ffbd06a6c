package record

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Text("x")
	var _ Value = Int(1)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
	var _ Value = Decimal{}
	var _ Value = Money{}
	var _ Value = Time{}
	var _ Value = Ref{}
	var _ Value = Option(1)
	var _ Value = OptionList{1, 2}
	var _ Value = ID{}
	var _ Value = PartyList{}
}

func TestEqualScalars(t *testing.T) {
	assert.True(t, Equal(Text("a"), Text("a")))
	assert.False(t, Equal(Text("a"), Text("b")))
	assert.True(t, Equal(Int(7), Int(7)))
	assert.False(t, Equal(Int(7), Float(7)))
	assert.True(t, Equal(Bool(true), Bool(true)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(Text("a"), nil))
}

func TestEqualDecimalNumeric(t *testing.T) {
	a, err := NewDecimal("1.0")
	require.NoError(t, err)
	b, err := NewDecimal("1.00")
	require.NoError(t, err)

	// Trailing zeros are not a difference.
	assert.True(t, Equal(a, b))

	c, err := NewDecimal("1.01")
	require.NoError(t, err)
	assert.False(t, Equal(a, c))
}

func TestEqualMoneyNumeric(t *testing.T) {
	a, err := NewDecimal("250.50")
	require.NoError(t, err)
	b, err := NewDecimal("250.5")
	require.NoError(t, err)

	assert.True(t, Equal(Money{Amount: a.D}, Money{Amount: b.D}))
}

func TestEqualTimeByInstant(t *testing.T) {
	utc := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	zone := time.FixedZone("plus2", 2*60*60)

	assert.True(t, Equal(Time{T: utc}, Time{T: utc.In(zone)}))
	assert.False(t, Equal(Time{T: utc}, Time{T: utc, LocalTag: true}))
}

func TestEqualRefIgnoresName(t *testing.T) {
	id := uuid.New()
	a := Ref{Entity: "account", ID: id, Name: "Acme"}
	b := Ref{Entity: "account", ID: id}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, Ref{Entity: "contact", ID: id, Name: "Acme"}))
	assert.False(t, Equal(a, Ref{Entity: "account", ID: uuid.New(), Name: "Acme"}))
}

func TestEqualOptionListOrderSensitive(t *testing.T) {
	assert.True(t, Equal(OptionList{1, 2, 3}, OptionList{1, 2, 3}))
	assert.False(t, Equal(OptionList{1, 2, 3}, OptionList{3, 2, 1}))
	assert.False(t, Equal(OptionList{1, 2}, OptionList{1, 2, 3}))
}

func TestIsEmptyText(t *testing.T) {
	assert.True(t, IsEmptyText(Text("")))
	assert.True(t, IsEmptyText(Text("   ")))
	assert.False(t, IsEmptyText(Text("x")))
	assert.False(t, IsEmptyText(Int(0)))
	assert.False(t, IsEmptyText(nil))
}

func TestRawFromMapSortsProperties(t *testing.T) {
	raw := RawFromMap(map[string]any{"Zeta": 1, "Alpha": 2, "Mid": 3})

	var names []string
	for _, p := range raw.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, names)
}

func TestRawRecordSetPreservesFirstPosition(t *testing.T) {
	raw := NewRaw()
	raw.Set("A", 1)
	raw.Set("B", 2)
	raw.Set("A", 9)

	props := raw.Properties()
	require.Len(t, props, 2)
	assert.Equal(t, "A", props[0].Name)
	assert.Equal(t, 9, props[0].Value)
	assert.Equal(t, "B", props[1].Name)
}

func TestTypedRecordOrderAndDelete(t *testing.T) {
	rec := NewTyped("account")
	rec.Set("Name", Text("Acme"))
	rec.Set("Employees", Int(10))
	rec.Set("Name", Text("Acme Ltd"))

	assert.Equal(t, []string{"Name", "Employees"}, rec.Columns())

	rec.Delete("Name")
	assert.Equal(t, []string{"Employees"}, rec.Columns())
	_, ok := rec.Get("Name")
	assert.False(t, ok)
}

func TestTypedRecordCloneIsIndependent(t *testing.T) {
	id := uuid.New()
	rec := NewTyped("account")
	rec.ID = &id
	rec.Set("Name", Text("Acme"))

	dup := rec.Clone()
	dup.Set("Name", Text("Other"))
	dup.Delete("Name")

	v, ok := rec.Get("Name")
	require.True(t, ok)
	assert.Equal(t, Text("Acme"), v)
	require.NotNil(t, dup.ID)
	assert.Equal(t, id, *dup.ID)
}

func TestTypedRecordEqual(t *testing.T) {
	a := NewTyped("account")
	a.Set("Name", Text("Acme"))
	a.Set("Employees", Int(10))

	b := NewTyped("account")
	b.Set("Employees", Int(10))
	b.Set("Name", Text("Acme"))

	// Column order does not matter for record equality.
	assert.True(t, a.Equal(b))

	b.Set("Employees", Int(11))
	assert.False(t, a.Equal(b))
}
