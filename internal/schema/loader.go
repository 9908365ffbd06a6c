package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/upsync-io/upsync/internal/record"
)

// LoadError reports a structural problem in a CUE schema file, with the CUE
// source position when one is available.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load builds a descriptor Set from the CUE schema files in dir.
//
// Expected shape:
//
//	entities: {
//		account: {
//			primaryId:   "accountid"
//			primaryName: "name"
//			...
//			columns: { name: {kind: "text"}, ... }
//		}
//	}
//
// Load validates only structure (kinds, intersect sides, column references);
// semantic consistency against the remote store is out of scope here.
func Load(dir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema path %s: not a directory", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("schema directory %s: no CUE instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading schema files: %w", inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building schema value: %w", err)
	}

	return FromValue(value)
}

// FromValue builds a descriptor Set from an already-compiled CUE value.
// Split out from Load so tests can compile schema snippets inline.
func FromValue(value cue.Value) (*Set, error) {
	entitiesVal := value.LookupPath(cue.ParsePath("entities"))
	if !entitiesVal.Exists() {
		return nil, &LoadError{Field: "entities", Message: "entities block is required", Pos: value.Pos()}
	}

	set := NewSet()
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, &LoadError{Field: "entities", Message: err.Error(), Pos: entitiesVal.Pos()}
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		if err := loadEntity(set, name, iter.Value()); err != nil {
			return nil, err
		}
	}

	if err := validateSet(set); err != nil {
		return nil, err
	}
	return set, nil
}

func loadEntity(set *Set, name string, v cue.Value) error {
	ent := &EntityDescriptor{Name: name}

	var err error
	if ent.PrimaryIDColumn, err = requiredString(v, name, "primaryId"); err != nil {
		return err
	}
	ent.PrimaryNameColumn = optionalString(v, "primaryName")
	ent.StateColumn = optionalString(v, "state")
	ent.StatusColumn = optionalString(v, "status")
	ent.OwnerColumn = optionalString(v, "owner")
	ent.TimeZoneColumn = optionalString(v, "timezone")
	ent.HasLocalTime = optionalBool(v, "localTime")
	if ent.HasLocalTime && ent.TimeZoneColumn == "" {
		return &LoadError{
			Field:   name + ".timezone",
			Message: "localTime entities must declare a timezone column",
			Pos:     v.Pos(),
		}
	}

	if sides := v.LookupPath(cue.ParsePath("intersect")); sides.Exists() {
		ent.IsIntersect = true
		parsed, err := parseIntersect(name, sides)
		if err != nil {
			return err
		}
		ent.IntersectSides = parsed
	}

	set.Add(ent)

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return &LoadError{Field: name + ".columns", Message: "columns block is required", Pos: v.Pos()}
	}
	colIter, err := colsVal.Fields()
	if err != nil {
		return &LoadError{Field: name + ".columns", Message: err.Error(), Pos: colsVal.Pos()}
	}
	for colIter.Next() {
		colName := colIter.Selector().Unquoted()
		col, err := loadColumn(name, colName, colIter.Value())
		if err != nil {
			return err
		}
		col.IsPrimaryID = colName == ent.PrimaryIDColumn
		col.IsPrimaryName = colName == ent.PrimaryNameColumn
		if err := set.AddColumn(name, col); err != nil {
			return err
		}
	}
	return nil
}

func loadColumn(entity, name string, v cue.Value) (*ColumnDescriptor, error) {
	field := entity + ".columns." + name

	kindStr, err := requiredString(v, field, "kind")
	if err != nil {
		return nil, err
	}
	kind, err := record.ParseKind(kindStr)
	if err != nil {
		return nil, &LoadError{Field: field + ".kind", Message: err.Error(), Pos: v.Pos()}
	}

	col := &ColumnDescriptor{LogicalName: name, Kind: kind}

	switch kind {
	case record.KindRef:
		targets := v.LookupPath(cue.ParsePath("targets"))
		if !targets.Exists() {
			return nil, &LoadError{Field: field + ".targets", Message: "ref columns require targets", Pos: v.Pos()}
		}
		list, err := targets.List()
		if err != nil {
			return nil, &LoadError{Field: field + ".targets", Message: err.Error(), Pos: targets.Pos()}
		}
		for list.Next() {
			t, err := list.Value().String()
			if err != nil {
				return nil, &LoadError{Field: field + ".targets", Message: err.Error(), Pos: list.Value().Pos()}
			}
			col.RefTargets = append(col.RefTargets, t)
		}
		if len(col.RefTargets) == 0 {
			return nil, &LoadError{Field: field + ".targets", Message: "at least one target is required", Pos: targets.Pos()}
		}

	case record.KindOption, record.KindOptionList:
		entries, err := parseOptions(field, v)
		if err != nil {
			return nil, err
		}
		col.Options = NewOptionCatalog(entries)

	case record.KindPartyList:
		if col.PartyEntity, err = requiredString(v, field, "partyEntity"); err != nil {
			return nil, err
		}
	}

	return col, nil
}

func parseOptions(field string, v cue.Value) ([]OptionEntry, error) {
	optsVal := v.LookupPath(cue.ParsePath("options"))
	if !optsVal.Exists() {
		return nil, &LoadError{Field: field + ".options", Message: "option columns require options", Pos: v.Pos()}
	}
	list, err := optsVal.List()
	if err != nil {
		return nil, &LoadError{Field: field + ".options", Message: err.Error(), Pos: optsVal.Pos()}
	}

	var entries []OptionEntry
	for list.Next() {
		ov := list.Value()
		label, err := requiredString(ov, field+".options", "label")
		if err != nil {
			return nil, err
		}
		valueVal := ov.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return nil, &LoadError{Field: field + ".options", Message: "option value is required", Pos: ov.Pos()}
		}
		value, err := valueVal.Int64()
		if err != nil {
			return nil, &LoadError{Field: field + ".options.value", Message: err.Error(), Pos: valueVal.Pos()}
		}

		entry := OptionEntry{Label: label, Value: int32(value), State: -1}
		if stateVal := ov.LookupPath(cue.ParsePath("state")); stateVal.Exists() {
			state, err := stateVal.Int64()
			if err != nil {
				return nil, &LoadError{Field: field + ".options.state", Message: err.Error(), Pos: stateVal.Pos()}
			}
			entry.State = int32(state)
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, &LoadError{Field: field + ".options", Message: "at least one option is required", Pos: optsVal.Pos()}
	}
	return entries, nil
}

func parseIntersect(entity string, v cue.Value) ([2]RefSide, error) {
	var sides [2]RefSide
	list, err := v.List()
	if err != nil {
		return sides, &LoadError{Field: entity + ".intersect", Message: err.Error(), Pos: v.Pos()}
	}
	i := 0
	for list.Next() {
		if i >= 2 {
			return sides, &LoadError{Field: entity + ".intersect", Message: "exactly two sides are required", Pos: v.Pos()}
		}
		sv := list.Value()
		ent, err := requiredString(sv, entity+".intersect", "entity")
		if err != nil {
			return sides, err
		}
		col, err := requiredString(sv, entity+".intersect", "column")
		if err != nil {
			return sides, err
		}
		sides[i] = RefSide{Entity: ent, Column: col}
		i++
	}
	if i != 2 {
		return sides, &LoadError{Field: entity + ".intersect", Message: "exactly two sides are required", Pos: v.Pos()}
	}
	return sides, nil
}

// validateSet checks cross-entity consistency:
// primary/state/status/owner/intersect columns must exist, ref targets must
// name loaded entities.
func validateSet(set *Set) error {
	for _, name := range set.Entities() {
		ent := set.entities[name]

		checks := []struct{ field, column string }{
			{"primaryId", ent.PrimaryIDColumn},
			{"primaryName", ent.PrimaryNameColumn},
			{"state", ent.StateColumn},
			{"status", ent.StatusColumn},
			{"owner", ent.OwnerColumn},
			{"timezone", ent.TimeZoneColumn},
		}
		for _, c := range checks {
			if c.column == "" {
				continue
			}
			if _, ok := ent.Column(c.column); !ok {
				return &LoadError{
					Field:   name + "." + c.field,
					Message: fmt.Sprintf("references undeclared column %q", c.column),
				}
			}
		}

		if ent.IsIntersect {
			for _, side := range ent.IntersectSides {
				if _, ok := set.entities[side.Entity]; !ok {
					return &LoadError{
						Field:   name + ".intersect",
						Message: fmt.Sprintf("references unknown entity %q", side.Entity),
					}
				}
				if _, ok := ent.Column(side.Column); !ok {
					return &LoadError{
						Field:   name + ".intersect",
						Message: fmt.Sprintf("references undeclared column %q", side.Column),
					}
				}
			}
		}

		for _, colName := range ent.Columns() {
			col, _ := ent.Column(colName)
			for _, target := range col.RefTargets {
				if _, ok := set.entities[target]; !ok {
					return &LoadError{
						Field:   name + ".columns." + colName + ".targets",
						Message: fmt.Sprintf("references unknown entity %q", target),
					}
				}
			}
			if col.Kind == record.KindPartyList {
				if _, ok := set.entities[col.PartyEntity]; !ok {
					return &LoadError{
						Field:   name + ".columns." + colName + ".partyEntity",
						Message: fmt.Sprintf("references unknown entity %q", col.PartyEntity),
					}
				}
			}
		}
	}
	return nil
}

func requiredString(v cue.Value, field, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &LoadError{Field: field + "." + path, Message: path + " is required", Pos: v.Pos()}
	}
	s, err := val.String()
	if err != nil {
		return "", &LoadError{Field: field + "." + path, Message: err.Error(), Pos: val.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, path string) string {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return ""
	}
	s, err := val.String()
	if err != nil {
		return ""
	}
	return s
}

func optionalBool(v cue.Value, path string) bool {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return false
	}
	b, err := val.Bool()
	if err != nil {
		return false
	}
	return b
}
