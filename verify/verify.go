// Package verify inspects generated fixtures the way a TLS consumer would:
// it parses certificates and CRLs and checks chains of trust against a
// CA certificate used as the only trust anchor.
package verify

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/jmcleod/sslfixture/index"
)

var (
	ErrNoCertificate = errors.New("no certificate found")
	ErrRevoked       = errors.New("certificate revoked")
	ErrUnknownKey    = errors.New("unrecognised private key container")
)

// Certificates parses every CERTIFICATE block in the PEM file at path, in
// file order.
func Certificates(path string) ([]*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCertificate)
	}
	return certs, nil
}

// Certificate parses the first certificate at path.
func Certificate(path string) (*x509.Certificate, error) {
	certs, err := Certificates(path)
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// Chain verifies the chain file at chainPath against the certificate at
// anchorPath, which is the only trusted root. The first certificate of the
// chain is the end entity; it is returned on success.
func Chain(chainPath, anchorPath string) (*x509.Certificate, error) {
	chain, err := Certificates(chainPath)
	if err != nil {
		return nil, err
	}
	anchor, err := Certificate(anchorPath)
	if err != nil {
		return nil, err
	}
	return chain[0], VerifyCertificate(chain[0], chain[1:], anchor)
}

// VerifyCertificate checks leaf against anchor with the optional
// intermediates. Extended key usage is not constrained.
func VerifyCertificate(leaf *x509.Certificate, intermediates []*x509.Certificate, anchor *x509.Certificate) error {
	roots := x509.NewCertPool()
	roots.AddCert(anchor)
	inter := x509.NewCertPool()
	for _, c := range intermediates {
		inter.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inter,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

// SelfSigned checks that cert is a CA certificate signed by its own key.
func SelfSigned(cert *x509.Certificate) error {
	if !cert.IsCA {
		return fmt.Errorf("%s: not a CA certificate", cert.Subject)
	}
	return cert.CheckSignatureFrom(cert)
}

// LoadCRL parses the CRL at path and checks that issuer signed it.
func LoadCRL(path string, issuer *x509.Certificate) (*x509.RevocationList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		if block.Type != "X509 CRL" {
			return nil, fmt.Errorf("%s: unexpected PEM block %q", path, block.Type)
		}
		der = block.Bytes
	}
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := crl.CheckSignatureFrom(issuer); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return crl, nil
}

// SerialText spells n the way CA indexes and the entity store do.
func SerialText(n *big.Int) string {
	return index.CanonicalSerial(n.Text(16))
}

// RevokedSerials lists the serial numbers in crl, spelled by SerialText.
func RevokedSerials(crl *x509.RevocationList) []string {
	out := make([]string, 0, len(crl.RevokedCertificateEntries))
	for _, e := range crl.RevokedCertificateEntries {
		out = append(out, SerialText(e.SerialNumber))
	}
	return out
}

// CheckRevocation returns ErrRevoked if crl lists cert's serial number.
func CheckRevocation(cert *x509.Certificate, crl *x509.RevocationList) error {
	for _, e := range crl.RevokedCertificateEntries {
		if e.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return fmt.Errorf("serial %s: %w", SerialText(cert.SerialNumber), ErrRevoked)
		}
	}
	return nil
}

// KeyContainer identifies the private-key container format of a PEM file.
type KeyContainer int

const (
	UnknownContainer KeyContainer = iota
	LegacyPlain
	LegacyEncrypted
	PKCS8Plain
	PKCS8Encrypted
)

func (k KeyContainer) String() string {
	switch k {
	case LegacyPlain:
		return "legacy"
	case LegacyEncrypted:
		return "legacy (encrypted)"
	case PKCS8Plain:
		return "pkcs8"
	case PKCS8Encrypted:
		return "pkcs8 (encrypted)"
	default:
		return "unknown"
	}
}

// Encrypted reports whether the container needs a password to load.
func (k KeyContainer) Encrypted() bool {
	return k == LegacyEncrypted || k == PKCS8Encrypted
}

// ClassifyKey reads the first private-key block of the file at path.
func ClassifyKey(path string) (KeyContainer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return UnknownContainer, err
	}
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			return UnknownContainer, fmt.Errorf("%s: %w", path, ErrUnknownKey)
		}
		switch block.Type {
		case "EC PRIVATE KEY":
			if block.Headers["Proc-Type"] == "4,ENCRYPTED" {
				return LegacyEncrypted, nil
			}
			return LegacyPlain, nil
		case "PRIVATE KEY":
			return PKCS8Plain, nil
		case "ENCRYPTED PRIVATE KEY":
			return PKCS8Encrypted, nil
		}
	}
}
