// Package keys manages the ed25519 identities used on the ledger: account
// and contract addresses, persisted seeds, derived principals and signed
// authorization entries.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/text/unicode/norm"

	"github.com/sealcoin/seal/pkg/contract"
)

const (
	AccountPrefix  = "G"
	ContractPrefix = "C"

	kdfSalt = "seal-principal-kdf"
)

var (
	ErrInvalidAddress = errors.New("keys: invalid address")
	ErrNoSeed         = errors.New("keys: seed file missing")
)

// KeyPair is an ed25519 signing identity.
type KeyPair struct {
	priv ed25519.PrivateKey
}

func Generate() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *KeyPair) Seed() []byte { return k.priv.Seed() }

func (k *KeyPair) PublicKey() ed25519.PublicKey { return k.priv.Public().(ed25519.PublicKey) }

func (k *KeyPair) PrivateKey() ed25519.PrivateKey { return k.priv }

// Address is the account address owned by this key.
func (k *KeyPair) Address() contract.Address { return AccountAddress(k.PublicKey()) }

func (k *KeyPair) Sign(msg []byte) []byte { return ed25519.Sign(k.priv, msg) }

// Derive returns a deterministic child identity for label, using
// HKDF-SHA256 over this key's seed. Labels are NFC-normalized first so
// visually identical names derive the same key.
func (k *KeyPair) Derive(label string) (*KeyPair, error) {
	if label == "" {
		return nil, fmt.Errorf("keys: derivation label must not be empty")
	}
	info := norm.NFC.String(label)
	r := hkdf.New(sha256.New, k.priv.Seed(), []byte(kdfSalt), []byte(info))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("keys: HKDF derivation failed: %w", err)
	}
	return FromSeed(seed)
}

// AccountAddress encodes an ed25519 public key as a G-address.
func AccountAddress(pub ed25519.PublicKey) contract.Address {
	return contract.Address(AccountPrefix + strings.ToUpper(hex.EncodeToString(pub)))
}

// ContractAddress derives the C-address of a named contract instance.
func ContractAddress(name string) contract.Address {
	sum := sha256.Sum256([]byte(norm.NFC.String(name)))
	return contract.Address(ContractPrefix + strings.ToUpper(hex.EncodeToString(sum[:])))
}

// ParseAccount decodes a G-address back into its public key.
func ParseAccount(addr contract.Address) (ed25519.PublicKey, error) {
	s := string(addr)
	if !strings.HasPrefix(s, AccountPrefix) {
		return nil, fmt.Errorf("%w: %q is not an account address", ErrInvalidAddress, s)
	}
	raw, err := hex.DecodeString(s[len(AccountPrefix):])
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return ed25519.PublicKey(raw), nil
}

// IsContract reports whether addr is a well-formed C-address.
func IsContract(addr contract.Address) bool {
	s := string(addr)
	if !strings.HasPrefix(s, ContractPrefix) {
		return false
	}
	raw, err := hex.DecodeString(s[len(ContractPrefix):])
	return err == nil && len(raw) == sha256.Size
}

// Load reads a hex-encoded seed file.
func Load(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSeed, path)
	}
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("keys: invalid seed format in %s: %w", path, err)
	}
	return FromSeed(seed)
}

// Save writes the seed to path (0600) and the address alongside it as
// path+".pub".
func Save(path string, k *KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(k.Seed())), 0o600); err != nil {
		return fmt.Errorf("keys: save %s: %w", path, err)
	}
	if err := os.WriteFile(path+".pub", []byte(k.Address()+"\n"), 0o644); err != nil {
		slog.Warn("keys: failed to write public address", "path", path+".pub", "error", err)
	}
	return nil
}

// LoadOrGenerate loads the seed at path, generating and persisting a fresh
// one when it does not exist and generation is allowed.
func LoadOrGenerate(path string, allowGenerate bool) (*KeyPair, bool, error) {
	k, err := Load(path)
	if err == nil {
		return k, false, nil
	}
	if !errors.Is(err, ErrNoSeed) || !allowGenerate {
		return nil, false, err
	}
	k, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, k); err != nil {
		return nil, false, err
	}
	return k, true, nil
}
