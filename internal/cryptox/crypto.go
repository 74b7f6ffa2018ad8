// Package cryptox derives the one-way lookup hash of an applicant's identity
// value and keeps a reversible AES-GCM copy alongside it. The hash is
// deterministic for a given pepper so it can back a unique index; the
// encrypted copy is what admin tooling decrypts on demand.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// HashIdentity derives the lookup hash of a raw identity value (e.g., a
// government ID number). The pepper acts as a fixed salt: the same value and
// pepper always produce the same hash, which is what makes the
// "does an application already exist" check possible.
func HashIdentity(value string, pepper []byte) string {
	sum := argon2.IDKey([]byte(value), pepper, 1, 64*1024, 4, 32)
	return hex.EncodeToString(sum)
}

// EncryptIdentity encrypts the raw identity value with AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A fresh
// random 12-byte nonce is generated per call and returned alongside the
// ciphertext.
func EncryptIdentity(value string, key []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, []byte(value), nil)
	return ciphertext, nonce, nil
}

// DecryptIdentity reverses EncryptIdentity given the same key and the nonce
// generated during encryption.
func DecryptIdentity(ciphertext, nonce, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
