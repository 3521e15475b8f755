package sealer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/store"
)

// Location of the shared public key.
const (
	PublicKeyRecordName = "Public Key"
	PublicKeyRecordKey  = "BACKGROUND_PUBLIC_KEY"
	PublicKeyField      = "value"
)

const keySize = 32

// Keypair is a Curve25519 keypair held by workers.
type Keypair struct {
	Public  [keySize]byte
	Private [keySize]byte
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{Public: *pub, Private: *priv}, nil
}

// KeypairFromPrivate derives the full keypair from a private key.
func KeypairFromPrivate(priv []byte) (*Keypair, error) {
	if len(priv) != keySize {
		return nil, fmt.Errorf("sealer: private key must be %d bytes, got %d", keySize, len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("sealer: derive public key: %w", err)
	}
	kp := &Keypair{}
	copy(kp.Private[:], priv)
	copy(kp.Public[:], pub)
	return kp, nil
}

// ParsePrivateKey decodes a base64 private key as written by
// PrivateKeyString.
func ParsePrivateKey(s string) (*Keypair, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("sealer: decode private key: %w", err)
	}
	return KeypairFromPrivate(raw)
}

// ParsePublicKey decodes a base64 public key.
func ParsePublicKey(s string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("sealer: decode public key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("sealer: public key must be %d bytes, got %d", keySize, len(raw))
	}
	var k [keySize]byte
	copy(k[:], raw)
	return &k, nil
}

func (k *Keypair) PublicKeyString() string {
	return base64.StdEncoding.EncodeToString(k.Public[:])
}

func (k *Keypair) PrivateKeyString() string {
	return base64.StdEncoding.EncodeToString(k.Private[:])
}

// PublishPublicKey stores the public half of kp in the well-known record
// that producers read.
func PublishPublicKey(ctx context.Context, s *store.Store, kp *Keypair) error {
	_, err := s.PutRecord(ctx, PublicKeyRecordName, PublicKeyRecordKey, api.Document{
		PublicKeyField: kp.PublicKeyString(),
	})
	return err
}
