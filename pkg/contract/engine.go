package contract

import (
	"fmt"

	"github.com/sealcoin/seal/pkg/baseline"
)

const (
	// MinDayOfYear and MaxDayOfYear bound the accepted day of year.
	MinDayOfYear uint32 = 1
	MaxDayOfYear uint32 = baseline.Days
	// MaxExtent is the largest plausible sensor reading.
	MaxExtent uint32 = 30000

	// TokensPerExtentUnit converts one extent unit into token units.
	TokensPerExtentUnit int64 = 100
	// BaseUnitsPerToken is the token's indivisible precision (7 decimals).
	BaseUnitsPerToken int64 = 10_000_000
	// MinAmount is the deadband in base units; smaller moves are ignored.
	MinAmount int64 = 1000 * BaseUnitsPerToken
)

// Action is the supply change a decision calls for.
type Action string

const (
	ActionMint Action = "mint"
	ActionBurn Action = "burn"
	ActionNoOp Action = "noop"
)

// SupplyDecision is computed per invocation and never persisted.
type SupplyDecision struct {
	DayOfYear   uint32 `json:"day_of_year"`
	Extent      uint32 `json:"extent"`
	Baseline    uint32 `json:"baseline"`
	DeltaRaw    int64  `json:"delta_raw"`
	DeltaScaled int64  `json:"delta_scaled"`
	Action      Action `json:"action"`
}

// Amount is the number of base units to mint or burn; zero for a no-op.
func (d SupplyDecision) Amount() int64 {
	switch d.Action {
	case ActionMint:
		return d.DeltaScaled
	case ActionBurn:
		return -d.DeltaScaled
	default:
		return 0
	}
}

// Decide is the pure scaling and deadband step.
func Decide(expected, extent uint32) SupplyDecision {
	delta := int64(extent) - int64(expected)
	scaled := delta * TokensPerExtentUnit * BaseUnitsPerToken

	action := ActionNoOp
	switch {
	case scaled > MinAmount:
		action = ActionMint
	case scaled < -MinAmount:
		action = ActionBurn
	}

	return SupplyDecision{
		Extent:      extent,
		Baseline:    expected,
		DeltaRaw:    delta,
		DeltaScaled: scaled,
		Action:      action,
	}
}

// ValidateReading checks the submitted reading against its accepted ranges.
func ValidateReading(dayOfYear, extent uint32) error {
	if dayOfYear < MinDayOfYear || dayOfYear > MaxDayOfYear {
		return fmt.Errorf("%w: day_of_year %d outside [%d, %d]", ErrOutOfRange, dayOfYear, MinDayOfYear, MaxDayOfYear)
	}
	if extent > MaxExtent {
		return fmt.Errorf("%w: extent %d outside [0, %d]", ErrOutOfRange, extent, MaxExtent)
	}
	return nil
}

// Engine evaluates readings against a baseline table.
type Engine struct {
	table *baseline.Table
}

// NewEngine returns an engine over table. A nil table selects the default.
func NewEngine(table *baseline.Table) *Engine {
	if table == nil {
		table = baseline.Default()
	}
	return &Engine{table: table}
}

// Table returns the baseline table the engine reads.
func (e *Engine) Table() *baseline.Table { return e.table }

// Evaluate validates a reading and returns the supply decision for it.
func (e *Engine) Evaluate(dayOfYear, extent uint32) (SupplyDecision, error) {
	if err := ValidateReading(dayOfYear, extent); err != nil {
		return SupplyDecision{}, err
	}
	expected, err := e.table.At(dayOfYear)
	if err != nil {
		return SupplyDecision{}, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	d := Decide(expected, extent)
	d.DayOfYear = dayOfYear
	return d, nil
}
