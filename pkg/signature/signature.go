//go:generate mockgen -destination=mocks/signature.go . Verifier

// Package signature checks and produces detached signatures of repository archives.
// RSA keys (PEM) sign the SHA-256 of the data with PKCS #1 v1.5; OpenPGP keys
// produce armored or binary detached signatures.
package signature

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

// EntryName is the archive entry holding the signature of its sibling entry.
const EntryName = "signature"

// Verifier checks a detached signature over data.
type Verifier interface {
	Verify(data io.Reader, sig []byte) error
}

// Signer produces a detached signature over data.
type Signer interface {
	Sign(data io.Reader) ([]byte, error)
}

var armorPrefix = []byte("-----BEGIN PGP")

// LoadVerifier reads a public key file. PGP armored key blocks give an OpenPGP
// verifier, PEM public keys an RSA verifier.
func LoadVerifier(keyPath string) (Verifier, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.IO("read public key", keyPath, err)
	}
	if bytes.Contains(data, armorPrefix) {
		keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Parse("read public key", keyPath, err)
		}
		return &PGPVerifier{keyring: keyring}, nil
	}
	pub, err := parseRSAPublicKey(data)
	if err != nil {
		return nil, errors.Parse("read public key", keyPath, err)
	}
	return &RSAVerifier{key: pub}, nil
}

// LoadSigner reads a private key file, PGP armored or PEM encoded RSA.
func LoadSigner(keyPath string) (Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.IO("read private key", keyPath, err)
	}
	if bytes.Contains(data, armorPrefix) {
		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Parse("read private key", keyPath, err)
		}
		if len(entities) == 0 || entities[0].PrivateKey == nil {
			return nil, errors.Parse("read private key", keyPath, fmt.Errorf("no private key found"))
		}
		return &PGPSigner{entity: entities[0]}, nil
	}
	key, err := parseRSAPrivateKey(data)
	if err != nil {
		return nil, errors.Parse("read private key", keyPath, err)
	}
	return &RSASigner{key: key}, nil
}

// RSAVerifier verifies PKCS #1 v1.5 signatures of the SHA-256 digest.
type RSAVerifier struct {
	key *rsa.PublicKey
}

// NewRSAVerifier returns a verifier for key.
func NewRSAVerifier(key *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{key: key}
}

// Verify implements Verifier.
func (v *RSAVerifier) Verify(data io.Reader, sig []byte) error {
	digest, err := sha256Of(data)
	if err != nil {
		return err
	}
	// signatures written by C tools carry a trailing NUL
	if len(sig) == v.key.Size()+1 && sig[len(sig)-1] == 0 {
		sig = sig[:len(sig)-1]
	}
	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest, sig); err != nil {
		return errors.Integrity("verify signature", "", err)
	}
	return nil
}

// RSASigner signs with an RSA private key.
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner returns a signer for key.
func NewRSASigner(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

// Sign implements Signer.
func (s *RSASigner) Sign(data io.Reader) ([]byte, error) {
	digest, err := sha256Of(data)
	if err != nil {
		return nil, err
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// PGPVerifier verifies detached OpenPGP signatures against a keyring.
type PGPVerifier struct {
	keyring openpgp.EntityList
}

// NewPGPVerifier returns a verifier trusting keyring.
func NewPGPVerifier(keyring openpgp.EntityList) *PGPVerifier {
	return &PGPVerifier{keyring: keyring}
}

// Verify implements Verifier. Both armored and binary signatures are accepted.
func (v *PGPVerifier) Verify(data io.Reader, sig []byte) error {
	var err error
	if bytes.HasPrefix(bytes.TrimSpace(sig), armorPrefix) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, data, bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, data, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return errors.Integrity("verify signature", "", err)
	}
	return nil
}

// PGPSigner produces armored detached signatures.
type PGPSigner struct {
	entity *openpgp.Entity
}

// NewPGPSigner returns a signer for entity, which must hold a decrypted private key.
func NewPGPSigner(entity *openpgp.Entity) *PGPSigner {
	return &PGPSigner{entity: entity}
}

// Sign implements Signer.
func (s *PGPSigner) Sign(data io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	err := openpgp.ArmoredDetachSign(&buf, s.entity, data, &packet.Config{DefaultHash: crypto.SHA256})
	if err != nil {
		return nil, fmt.Errorf("failed to create detached signature: %w", err)
	}
	return buf.Bytes(), nil
}

func sha256Of(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, errors.IO("hash signed data", "", err)
	}
	return h.Sum(nil), nil
}

func parseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not an RSA key")
	}
	return key, nil
}

func parseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not an RSA key")
	}
	return key, nil
}
