// Package baseline holds the day-of-year reference table of expected sea-ice
// extent that supply decisions are measured against.
//
// A Table is immutable once built. The default table ships embedded with the
// binary; replacement tables travel inside logic bundles and take effect only
// through an upgrade.
package baseline

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Days is the number of entries in a table, one per day of a leap year.
const Days = 366

var (
	// ErrInvalidTable is returned when a table document fails validation.
	ErrInvalidTable = errors.New("baseline: invalid table")
	// ErrDayOutOfRange is returned by At for a day outside [1, Days].
	ErrDayOutOfRange = errors.New("baseline: day of year out of range")
)

//go:embed data/median_extent.json
var defaultTableJSON []byte

const tableSchemaURL = "https://seal.schemas.local/baseline/table.schema.json"

const tableSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["values"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "unit": {"type": "string"},
    "values": {
      "type": "array",
      "minItems": 366,
      "maxItems": 366,
      "items": {"type": "integer", "minimum": 0, "maximum": 4294967295}
    }
  }
}`

var tableSchema = jsonschema.MustCompileString(tableSchemaURL, tableSchemaJSON)

// Document is the serialized form of a table.
type Document struct {
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
	Unit   string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Values []uint32 `json:"values" yaml:"values"`
}

// Table is an immutable, 1-indexed-by-day-of-year lookup of expected extent.
type Table struct {
	name   string
	unit   string
	values [Days]uint32
}

// New builds a table from exactly Days values.
func New(name, unit string, values []uint32) (*Table, error) {
	if len(values) != Days {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidTable, Days, len(values))
	}
	t := &Table{name: name, unit: unit}
	copy(t.values[:], values)
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded reference table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTableJSON)
		if err != nil {
			panic(fmt.Sprintf("baseline: embedded table is invalid: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Parse decodes and validates a JSON table document.
func Parse(data []byte) (*Table, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if err := tableSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return FromDocument(doc)
}

// FromDocument builds a table from an already decoded document.
func FromDocument(doc Document) (*Table, error) {
	return New(doc.Name, doc.Unit, doc.Values)
}

// Load reads a table document from a .json, .yaml or .yml file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("load baseline %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidTable, path, err)
		}
		data, err = json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("%w: convert %s: %v", ErrInvalidTable, path, err)
		}
	}
	return Parse(data)
}

// At returns the expected extent for a 1-based day of year.
func (t *Table) At(dayOfYear uint32) (uint32, error) {
	if dayOfYear < 1 || dayOfYear > Days {
		return 0, fmt.Errorf("%w: %d", ErrDayOutOfRange, dayOfYear)
	}
	return t.values[dayOfYear-1], nil
}

// Name returns the table's descriptive name.
func (t *Table) Name() string { return t.name }

// Values returns a copy of the table entries, index 0 being day 1.
func (t *Table) Values() []uint32 {
	out := make([]uint32, Days)
	copy(out, t.values[:])
	return out
}

// Document returns the serializable form of the table.
func (t *Table) Document() Document {
	return Document{Name: t.name, Unit: t.unit, Values: t.Values()}
}

// Digest returns the SHA-256 of the table's canonical JSON document.
func (t *Table) Digest() (string, error) {
	raw, err := json.Marshal(t.Document())
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("baseline: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Equal reports whether two tables hold the same entries.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.values == other.values
}
