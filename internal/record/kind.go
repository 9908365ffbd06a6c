package record

import "fmt"

// Kind tags the declared type of a single column. It drives which coercer
// converts raw input for that column and how the value is encoded at rest.
type Kind string

const (
	KindText       Kind = "text"
	KindMemo       Kind = "memo"
	KindInteger    Kind = "integer"
	KindBigInt     Kind = "bigint"
	KindDecimal    Kind = "decimal"
	KindDouble     Kind = "double"
	KindMoney      Kind = "money"
	KindBoolean    Kind = "boolean"
	KindDateTime   Kind = "datetime"
	KindRef        Kind = "ref"
	KindOption     Kind = "option"
	KindOptionList Kind = "optionlist"
	KindID         Kind = "id"
	KindPartyList  Kind = "partylist"
)

// knownKinds is the closed set of kinds the coercion layer implements.
var knownKinds = map[Kind]bool{
	KindText:       true,
	KindMemo:       true,
	KindInteger:    true,
	KindBigInt:     true,
	KindDecimal:    true,
	KindDouble:     true,
	KindMoney:      true,
	KindBoolean:    true,
	KindDateTime:   true,
	KindRef:        true,
	KindOption:     true,
	KindOptionList: true,
	KindID:         true,
	KindPartyList:  true,
}

// ParseKind validates a kind string from a schema definition.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !knownKinds[k] {
		return "", fmt.Errorf("unknown column kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return knownKinds[k]
}
