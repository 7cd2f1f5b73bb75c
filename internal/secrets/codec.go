// Copyright 2026 The Whatsgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets encrypts credential fields before they reach the settings store.
//
// Envelope format: hex(iv) ":" hex(tag) ":" hex(ciphertext), AES-256-GCM.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length in bytes
	KeySize = 32

	ivSize  = 12
	tagSize = 16

	kdfInfo = "whatsgate credential encryption v1"
)

var (
	ErrMalformedEnvelope = errors.New("malformed ciphertext envelope")
	ErrDecryptionFailed  = errors.New("ciphertext authentication failed")
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes")
)

// Codec performs authenticated encryption with a process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a codec for a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// GenerateKey returns a fresh random key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// ParseKey turns configured key material into a 32-byte key.
// A 64 character hex string is used as-is; anything else is treated as a
// passphrase and expanded with HKDF-SHA256. The boolean reports whether a
// key had to be generated because the material was empty.
func ParseKey(material string) ([]byte, bool, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		key, err := GenerateKey()
		return key, true, err
	}
	if len(material) == KeySize*2 {
		if key, err := hex.DecodeString(material); err == nil {
			return key, false, nil
		}
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(material), nil, []byte(kdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, false, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, false, nil
}

// Encrypt seals plaintext into an envelope string.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt.
// It never returns plaintext for an envelope that fails authentication.
func (c *Codec) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", ErrMalformedEnvelope
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformedEnvelope
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedEnvelope
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEnvelope reports whether s has the shape of an encrypted envelope.
func IsEnvelope(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	return len(parts[0]) == ivSize*2 && len(parts[1]) == tagSize*2
}
