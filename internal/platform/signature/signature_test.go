package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"
	"time"
)

func testCertificate(t *testing.T, notAfter time.Time) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4521),
		Subject: pkix.Name{
			CommonName:   "Dr. Elena Vargas",
			Organization: []string{"Clinerva"},
		},
		Issuer:    pkix.Name{CommonName: "Clinerva CA"},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert, key
}

func TestInfoFromCertificate(t *testing.T) {
	cert, _ := testCertificate(t, time.Now().Add(24*time.Hour))
	info := InfoFromCertificate(cert)

	if info.SerialNumber != "4521" {
		t.Errorf("expected serial 4521, got %q", info.SerialNumber)
	}
	if info.Subject == "" || info.Issuer == "" {
		t.Errorf("expected subject and issuer populated, got %+v", info)
	}
}

func TestSignerSign(t *testing.T) {
	cert, key := testCertificate(t, time.Now().Add(24*time.Hour))
	s := &Signer{Info: InfoFromCertificate(cert), key: key, cert: cert}

	doc := []byte("prescription: amoxicillin 500mg")
	encoded, err := s.Sign(doc)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("signature is not valid base64: %v", err)
	}
	digest := sha256.Sum256(doc)
	if !ecdsa.VerifyASN1(&key.PublicKey, digest[:], raw) {
		t.Error("signature does not verify against the certificate key")
	}
}

func TestOpen_GarbageBlob(t *testing.T) {
	_, err := Open([]byte("not a pkcs12 bundle"), "secret")
	if err == nil {
		t.Fatal("expected error for garbage input")
	}
	if errors.Is(err, ErrWrongPassword) {
		t.Error("garbage input must not be reported as a wrong password")
	}
}

func TestNewSigner_ExpiredCertificate(t *testing.T) {
	cert, key := testCertificate(t, time.Now().Add(-time.Hour))
	_, err := newSigner(key, cert, time.Now())
	if !errors.Is(err, ErrCertificateExpired) {
		t.Errorf("expected ErrCertificateExpired, got %v", err)
	}
}

func TestNewSigner_NoPrivateKey(t *testing.T) {
	cert, _ := testCertificate(t, time.Now().Add(time.Hour))
	_, err := newSigner("not a key", cert, time.Now())
	if !errors.Is(err, ErrNoPrivateKey) {
		t.Errorf("expected ErrNoPrivateKey, got %v", err)
	}
}
