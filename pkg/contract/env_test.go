package contract

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// fakeEnv is a non-atomic Env for exercising the contract in isolation.
type fakeEnv struct {
	store      *fakeStorage
	authorized map[Address]bool
	authCalls  []Address
	tokens     map[Address]*fakeToken
	upgrades   []string
	upgradeErr error
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		store:      &fakeStorage{data: make(map[Key][]byte)},
		authorized: make(map[Address]bool),
		tokens:     make(map[Address]*fakeToken),
	}
}

func (e *fakeEnv) allow(principals ...Address) {
	for _, p := range principals {
		e.authorized[p] = true
	}
}

func (e *fakeEnv) deny(principals ...Address) {
	for _, p := range principals {
		delete(e.authorized, p)
	}
}

func (e *fakeEnv) Storage() Storage { return e.store }

func (e *fakeEnv) RequireAuth(_ context.Context, p Address) error {
	e.authCalls = append(e.authCalls, p)
	if !e.authorized[p] {
		return fmt.Errorf("%w: %s", ErrUnauthorized, p)
	}
	return nil
}

func (e *fakeEnv) Token(addr Address) TokenClient {
	t, ok := e.tokens[addr]
	if !ok {
		t = &fakeToken{balances: make(map[Address]int64)}
		e.tokens[addr] = t
	}
	return t
}

func (e *fakeEnv) UpdateCurrentLogic(_ context.Context, hash string) error {
	if e.upgradeErr != nil {
		return e.upgradeErr
	}
	e.upgrades = append(e.upgrades, hash)
	return nil
}

type fakeStorage struct {
	data map[Key][]byte
}

func (s *fakeStorage) Get(_ context.Context, k Key) ([]byte, bool, error) {
	v, ok := s.data[k]
	return v, ok, nil
}

func (s *fakeStorage) Set(_ context.Context, k Key, v []byte) error {
	s.data[k] = v
	return nil
}

func (s *fakeStorage) Remove(_ context.Context, k Key) error {
	delete(s.data, k)
	return nil
}

func (s *fakeStorage) Has(_ context.Context, k Key) (bool, error) {
	_, ok := s.data[k]
	return ok, nil
}

func (s *fakeStorage) snapshot() map[Key][]byte {
	return maps.Clone(s.data)
}

type tokenCall struct {
	op     string
	who    Address
	amount int64
}

type fakeToken struct {
	balances map[Address]int64
	calls    []tokenCall
}

func (t *fakeToken) Transfer(_ context.Context, from, to Address, amount int64) error {
	t.calls = append(t.calls, tokenCall{"transfer", from, amount})
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

func (t *fakeToken) Mint(_ context.Context, to Address, amount int64) error {
	t.calls = append(t.calls, tokenCall{"mint", to, amount})
	t.balances[to] += amount
	return nil
}

func (t *fakeToken) Burn(_ context.Context, from Address, amount int64) error {
	t.calls = append(t.calls, tokenCall{"burn", from, amount})
	if t.balances[from] < amount {
		return errors.New("insufficient balance")
	}
	t.balances[from] -= amount
	return nil
}

func (t *fakeToken) Balance(_ context.Context, of Address) (int64, error) {
	return t.balances[of], nil
}
