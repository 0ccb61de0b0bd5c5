package contract

import (
	"context"
	"encoding/json"
	"fmt"
)

// Key is a storage key owned by the contract.
type Key string

const (
	KeyAdmin    Key = "Admin"
	KeyToken    Key = "Token"
	KeySealData Key = "SealData"
)

// Reading is one accepted sensor reading.
type Reading struct {
	DayOfYear uint32 `json:"day_of_year"`
	Extent    uint32 `json:"extent"`
}

// State is a snapshot of the persisted contract state.
type State struct {
	Admin       Address  `json:"admin,omitempty"`
	Token       Address  `json:"token,omitempty"`
	LastReading *Reading `json:"last_reading,omitempty"`
}

// Initialized reports whether both admin and token are set.
func (s State) Initialized() bool {
	return s.Admin != "" && s.Token != ""
}

func loadState(ctx context.Context, st Storage) (State, error) {
	var s State
	if _, err := getJSON(ctx, st, KeyAdmin, &s.Admin); err != nil {
		return State{}, err
	}
	if _, err := getJSON(ctx, st, KeyToken, &s.Token); err != nil {
		return State{}, err
	}
	var r Reading
	ok, err := getJSON(ctx, st, KeySealData, &r)
	if err != nil {
		return State{}, err
	}
	if ok {
		s.LastReading = &r
	}

	if s.Admin == "" && (s.Token != "" || s.LastReading != nil) {
		return State{}, fmt.Errorf("%w: token or reading present without admin", ErrMissingState)
	}
	return s, nil
}

func getJSON(ctx context.Context, st Storage, key Key, dst any) (bool, error) {
	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("storage get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrMissingState, key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, st Storage, key Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := st.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("storage set %s: %w", key, err)
	}
	return nil
}

func remove(ctx context.Context, st Storage, key Key) error {
	if err := st.Remove(ctx, key); err != nil {
		return fmt.Errorf("storage remove %s: %w", key, err)
	}
	return nil
}
