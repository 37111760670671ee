// Package signature loads a practitioner's PKCS#12 certificate and produces
// the signer details embedded in signed clinical documents. The certificate
// blob stays encrypted at rest; the owner's password is required at signing
// time and is never persisted.
package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

var (
	// ErrWrongPassword is recoverable: the user mistyped and may retry.
	ErrWrongPassword = errors.New("certificate password is incorrect")

	ErrInvalidCertificate = errors.New("certificate file is not a valid PKCS#12 bundle")
	ErrCertificateExpired = errors.New("certificate has expired")
	ErrNoPrivateKey       = errors.New("certificate bundle has no signing key")
)

// SignerInfo is what gets stamped onto a signed document.
type SignerInfo struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotAfter     time.Time `json:"not_after"`
}

// Signer wraps a decrypted certificate and its private key for the duration
// of one signing operation.
type Signer struct {
	Info SignerInfo

	key  crypto.Signer
	cert *x509.Certificate
}

// Open decrypts a PKCS#12 blob with the given password. A wrong password
// returns ErrWrongPassword so handlers can map it to a retryable client error.
func Open(p12 []byte, password string) (*Signer, error) {
	return openAt(p12, password, time.Now())
}

func openAt(p12 []byte, password string, now time.Time) (*Signer, error) {
	priv, cert, err := pkcs12.Decode(p12, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) || strings.Contains(err.Error(), "password") {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return newSigner(priv, cert, now)
}

func newSigner(priv interface{}, cert *x509.Certificate, now time.Time) (*Signer, error) {
	if cert == nil {
		return nil, ErrInvalidCertificate
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, ErrNoPrivateKey
	}
	if now.After(cert.NotAfter) {
		return nil, ErrCertificateExpired
	}
	return &Signer{
		Info: InfoFromCertificate(cert),
		key:  signer,
		cert: cert,
	}, nil
}

// InfoFromCertificate extracts the identifying fields of a certificate.
func InfoFromCertificate(cert *x509.Certificate) SignerInfo {
	return SignerInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.String(),
		NotAfter:     cert.NotAfter,
	}
}

// Sign hashes the document bytes and signs the digest, returning a base64
// encoded signature suitable for storage alongside the signer info.
func (s *Signer) Sign(document []byte) (string, error) {
	digest := sha256.Sum256(document)
	sig, err := s.key.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("sign document: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
