package sealer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// FailurePolicy decides what happens when sealing or opening a sensitive
// fragment fails.
type FailurePolicy int

const (
	// PolicyContinue logs the failure and carries on without the
	// sensitive fragment.
	PolicyContinue FailurePolicy = iota

	// PolicyStrict turns the failure into an error for the operation.
	PolicyStrict
)

// ParseFailurePolicy accepts "continue" (or "") and "strict".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return PolicyContinue, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return 0, fmt.Errorf("sealer: unknown failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "continue"
}

// Outcome is the result of sealing or opening a fragment.
type Outcome struct {
	// Envelope is set by a successful Encrypt.
	Envelope Envelope
	// Data is set by a successful Decrypt.
	Data map[string]any
	// Err wraps api.ErrEncryption or api.ErrDecryption on failure.
	Err error
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// KeyFetcher loads well-known records. *store.Store implements it.
type KeyFetcher interface {
	FetchRecord(ctx context.Context, name, key string) (*store.Record, error)
}

// Gateway caches the shared public key and applies the Cipher.
// It is safe for concurrent use; concurrent fetches of the key are
// collapsed into one.
type Gateway struct {
	keys   KeyFetcher
	cipher Cipher
	policy FailurePolicy

	group singleflight.Group

	mu        sync.RWMutex
	publicKey string
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithCipher replaces the default NaClCipher.
func WithCipher(c Cipher) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.cipher = c
		}
	}
}

// WithFailurePolicy sets the failure policy. Default is PolicyContinue.
func WithFailurePolicy(p FailurePolicy) GatewayOption {
	return func(g *Gateway) { g.policy = p }
}

// NewGateway returns a Gateway reading the public key through keys.
// keys may be nil on the worker side, which only decrypts.
func NewGateway(keys KeyFetcher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		keys:   keys,
		cipher: NaClCipher{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the configured failure policy.
func (g *Gateway) Policy() FailurePolicy { return g.policy }

// PublicKey returns the cached key, if any.
func (g *Gateway) PublicKey() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.publicKey, g.publicKey != ""
}

// FetchPublicKey reads the well-known key record and caches its value.
// It always goes to storage; use EnsurePublicKey to honour the cache.
// Storage errors are returned unmodified.
func (g *Gateway) FetchPublicKey(ctx context.Context) (string, error) {
	if g.keys == nil {
		return "", errors.New("sealer: no key source configured")
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own ctx ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(PublicKeyRecordKey, func() (any, error) {
		rec, err := g.keys.FetchRecord(fetchCtx, PublicKeyRecordName, PublicKeyRecordKey)
		if err != nil {
			return "", err
		}
		key, _ := rec.Data()[PublicKeyField].(string)
		if key == "" {
			return "", fmt.Errorf("sealer: record %s has no %q", rec.Name(), PublicKeyField)
		}

		g.mu.Lock()
		g.publicKey = key
		g.mu.Unlock()
		return key, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// EnsurePublicKey returns the cached key, fetching it on first use.
func (g *Gateway) EnsurePublicKey(ctx context.Context) (string, error) {
	if key, ok := g.PublicKey(); ok {
		return key, nil
	}
	return g.FetchPublicKey(ctx)
}

// Encrypt seals fragment for the holder of publicKey.
func (g *Gateway) Encrypt(fragment map[string]any, publicKey string) Outcome {
	plain, err := store.EncodeDocument(fragment)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: encode: %v", api.ErrEncryption, err)}
	}
	env, err := g.cipher.Encrypt(plain, publicKey)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: %v", api.ErrEncryption, err)}
	}
	return Outcome{Envelope: env}
}

// Decrypt opens env with kp and decodes the fragment.
func (g *Gateway) Decrypt(env Envelope, kp *Keypair) Outcome {
	if kp == nil {
		return Outcome{Err: fmt.Errorf("%w: no keypair configured", api.ErrDecryption)}
	}
	plain, err := g.cipher.Decrypt(env, kp)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: %v", api.ErrDecryption, err)}
	}
	data, err := store.DecodeDocument(plain)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: decode: %v", api.ErrDecryption, err)}
	}
	return Outcome{Data: data}
}
