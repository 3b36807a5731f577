// Package crypto implements the payload transform used by the relay: RSA-OAEP
// encryption to a receiver-supplied public key, carried as base64 text.
//
// OAEP uses SHA-1 for both the hash and MGF1, which is the default padding
// of the clients that generate these keys. Plaintext longer than
// MaxPlaintextSize is rejected rather than truncated.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEncryption is returned by Encrypt for any failure.
	ErrEncryption = errors.New("encryption failed")
	// ErrDecryption is returned by Decrypt for any failure.
	ErrDecryption = errors.New("decryption failed")
	// ErrPayloadTooLarge is wrapped by ErrEncryption when the plaintext does
	// not fit in a single OAEP block for the given key.
	ErrPayloadTooLarge = errors.New("payload too large for key")
)

// MaxPlaintextSize is the largest plaintext in bytes that one OAEP-SHA1
// block can carry for pub.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha1.Size - 2
}

// Encrypt encrypts plaintext with the PEM-encoded public key and returns the
// ciphertext as standard base64.
func Encrypt(plaintext, publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	if len(plaintext) > MaxPlaintextSize(pub) {
		return "", fmt.Errorf("%w: %w (%d > %d bytes)", ErrEncryption, ErrPayloadTooLarge, len(plaintext), MaxPlaintextSize(pub))
	}
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt with the matching PEM-encoded private key.
func Decrypt(ciphertextB64, privateKeyPEM string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertextB64))
	if err != nil {
		return "", fmt.Errorf("%w: malformed base64: %v", ErrDecryption, err)
	}
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	pt, err := rsa.DecryptOAEP(sha1.New(), nil, priv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(pt), nil
}

// ParsePublicKey accepts "PUBLIC KEY" (PKIX) and "RSA PUBLIC KEY" (PKCS#1)
// PEM blocks.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemText)))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported public key type %T", k)
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// ParsePrivateKey accepts "PRIVATE KEY" (PKCS#8) and "RSA PRIVATE KEY"
// (PKCS#1) PEM blocks.
func ParsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemText)))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		priv, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", k)
		}
		return priv, nil
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// RSA adapts the package functions to the relay's Encrypter interface.
type RSA struct{}

// Encrypt implements the relay's Encrypter.
func (RSA) Encrypt(plaintext, publicKeyPEM string) (string, error) {
	return Encrypt(plaintext, publicKeyPEM)
}
