package sealer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Envelope is a sealed fragment as stored on a job.
type Envelope struct {
	EncryptedData []byte
	EncryptedKey  []byte
}

// Empty reports whether the envelope carries nothing.
func (e Envelope) Empty() bool {
	return len(e.EncryptedData) == 0 || len(e.EncryptedKey) == 0
}

// Cipher is the public-key primitive pair.
type Cipher interface {
	Encrypt(plaintext []byte, publicKey string) (Envelope, error)
	Decrypt(env Envelope, kp *Keypair) ([]byte, error)
}

const nonceSize = 24

// NaClCipher seals data with secretbox under a random key and seals that
// key with box.SealAnonymous. EncryptedData is nonce || secretbox output.
type NaClCipher struct {
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

var _ Cipher = NaClCipher{}

var errOpen = errors.New("sealer: message authentication failed")

func (c NaClCipher) random() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

func (c NaClCipher) Encrypt(plaintext []byte, publicKey string) (Envelope, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return Envelope{}, err
	}

	var key [keySize]byte
	if _, err := io.ReadFull(c.random(), key[:]); err != nil {
		return Envelope{}, fmt.Errorf("sealer: generate key: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(c.random(), nonce[:]); err != nil {
		return Envelope{}, fmt.Errorf("sealer: generate nonce: %w", err)
	}

	data := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	sealedKey, err := box.SealAnonymous(nil, key[:], pub, c.random())
	if err != nil {
		return Envelope{}, fmt.Errorf("sealer: seal key: %w", err)
	}

	return Envelope{EncryptedData: data, EncryptedKey: sealedKey}, nil
}

func (c NaClCipher) Decrypt(env Envelope, kp *Keypair) ([]byte, error) {
	if kp == nil {
		return nil, errors.New("sealer: no keypair")
	}
	if len(env.EncryptedData) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealer: encrypted data too short")
	}

	rawKey, ok := box.OpenAnonymous(nil, env.EncryptedKey, &kp.Public, &kp.Private)
	if !ok || len(rawKey) != keySize {
		return nil, errOpen
	}
	var key [keySize]byte
	copy(key[:], rawKey)

	var nonce [nonceSize]byte
	copy(nonce[:], env.EncryptedData[:nonceSize])

	plain, ok := secretbox.Open(nil, env.EncryptedData[nonceSize:], &nonce, &key)
	if !ok {
		return nil, errOpen
	}
	return plain, nil
}
