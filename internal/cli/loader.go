package cli

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/upsync-io/upsync/internal/record"
)

// RecordFile is the decoded on-disk input: one target entity and its raw
// property-bag records. YAML is also the JSON reader since YAML is a JSON
// superset.
type RecordFile struct {
	// Entity is the target record type. A command-line --entity flag
	// overrides it.
	Entity string

	// Records are the raw property bags, in file order with each bag's
	// properties in author order.
	Records []*record.RawRecord
}

// recordFileDoc is the YAML shape. Records stay as nodes so the mapping
// key order survives decoding.
type recordFileDoc struct {
	Entity  string      `yaml:"entity"`
	Records []yaml.Node `yaml:"records"`
}

// LoadRecordFile reads and decodes a record file. Path "-" reads stdin.
func LoadRecordFile(path string) (*RecordFile, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open record file: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc recordFileDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode record file %s: %w", path, err)
	}
	if len(doc.Records) == 0 {
		return nil, fmt.Errorf("record file %s: no records", path)
	}

	file := &RecordFile{Entity: doc.Entity}
	for i := range doc.Records {
		raw, err := rawFromNode(&doc.Records[i])
		if err != nil {
			return nil, fmt.Errorf("record file %s: record %d: %w", path, i, err)
		}
		file.Records = append(file.Records, raw)
	}
	return file, nil
}

// rawFromNode walks a mapping node pairwise so properties keep the order
// the author wrote them in.
func rawFromNode(n *yaml.Node) (*record.RawRecord, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: record must be a mapping", n.Line)
	}
	raw := record.NewRaw()
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		raw.Set(name, v)
	}
	return raw, nil
}
