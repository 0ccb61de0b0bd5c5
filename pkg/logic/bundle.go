// Package logic defines the logic bundles that an upgrade installs: a
// semver revision, the version number the contract reports, and the
// baseline table the supply engine evaluates against.
package logic

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sealcoin/seal/pkg/artifacts"
	"github.com/sealcoin/seal/pkg/baseline"
	"github.com/sealcoin/seal/pkg/contract"
)

// DefaultRevision is the revision of the logic compiled into the binary.
const DefaultRevision = "1.0.0"

var (
	ErrInvalidBundle = errors.New("logic: invalid bundle")
	ErrDowngrade     = errors.New("logic: revision downgrade")
)

const bundleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["revision", "version", "baseline"],
  "additionalProperties": false,
  "properties": {
    "revision": {"type": "string", "minLength": 5},
    "version": {"type": "integer", "minimum": 1, "maximum": 4294967295},
    "description": {"type": "string"},
    "baseline": {"type": "object", "required": ["values"]}
  }
}`

var bundleSchema = jsonschema.MustCompileString("https://seal.schemas.local/logic/bundle.schema.json", bundleSchemaJSON)

// Bundle is the published unit of contract logic.
type Bundle struct {
	Revision    string            `json:"revision"`
	Version     uint32            `json:"version"`
	Description string            `json:"description,omitempty"`
	Baseline    baseline.Document `json:"baseline"`
}

// Default returns the bundle matching the built-in contract.
func Default() Bundle {
	return Bundle{
		Revision: DefaultRevision,
		Version:  contract.DefaultVersion,
		Baseline: baseline.Default().Document(),
	}
}

// Decode parses and validates a bundle.
func Decode(data []byte) (Bundle, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := bundleSchema.Validate(generic); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Validate checks the revision and the embedded table.
func (b Bundle) Validate() error {
	if _, err := semver.StrictNewVersion(b.Revision); err != nil {
		return fmt.Errorf("%w: revision %q: %v", ErrInvalidBundle, b.Revision, err)
	}
	if b.Version == 0 {
		return fmt.Errorf("%w: version must be positive", ErrInvalidBundle)
	}
	if _, err := baseline.FromDocument(b.Baseline); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return nil
}

// Encode returns the canonical JSON form, whose digest is the bundle hash.
func (b Bundle) Encode() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// Hash returns the content hash the bundle is published under.
func (b Bundle) Hash() (string, error) {
	data, err := b.Encode()
	if err != nil {
		return "", err
	}
	return artifacts.Digest(data), nil
}

// Contract instantiates the contract this bundle describes.
func (b Bundle) Contract(logger *slog.Logger) (*contract.Contract, error) {
	table, err := baseline.FromDocument(b.Baseline)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	opts := []contract.Option{contract.WithVersion(b.Version)}
	if logger != nil {
		opts = append(opts, contract.WithLogger(logger))
	}
	return contract.New(table, opts...), nil
}

// CheckUpgrade rejects moving from current to a lower revision.
// Reinstalling the same revision is allowed.
func CheckUpgrade(current, next string) error {
	cur, err := semver.StrictNewVersion(current)
	if err != nil {
		return fmt.Errorf("%w: current revision %q: %v", ErrInvalidBundle, current, err)
	}
	nxt, err := semver.StrictNewVersion(next)
	if err != nil {
		return fmt.Errorf("%w: revision %q: %v", ErrInvalidBundle, next, err)
	}
	if nxt.LessThan(cur) {
		return fmt.Errorf("%w: %s -> %s", ErrDowngrade, cur, nxt)
	}
	return nil
}
