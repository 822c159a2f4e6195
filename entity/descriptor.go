// Package entity models the participants of a fixture PKI: certificate
// authorities and the leaves they sign. A Descriptor is pure data; the
// Store tracks which descriptors exist and which have been issued, and is
// the only place a "signed by" reference is resolved.
package entity

import (
	"fmt"
	"path"
	"strings"
)

// KeyEncoding selects the private-key container format.
type KeyEncoding int

const (
	// Legacy is the algorithm-specific container ("EC PRIVATE KEY").
	Legacy KeyEncoding = iota
	// PKCS8 is the algorithm-independent PKCS#8 container.
	PKCS8
)

func (e KeyEncoding) String() string {
	switch e {
	case Legacy:
		return "legacy"
	case PKCS8:
		return "pkcs8"
	default:
		return fmt.Sprintf("KeyEncoding(%d)", int(e))
	}
}

// ParseKeyEncoding is the inverse of String. The empty string is Legacy.
func ParseKeyEncoding(s string) (KeyEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return Legacy, nil
	case "pkcs8":
		return PKCS8, nil
	default:
		return 0, fmt.Errorf("unknown key encoding %q: %w", s, ErrInvalid)
	}
}

func (e KeyEncoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *KeyEncoding) UnmarshalText(text []byte) error {
	parsed, err := ParseKeyEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// UnmarshalYAML lets yaml.v2 decode "legacy" / "pkcs8".
func (e *KeyEncoding) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return e.UnmarshalText([]byte(s))
}

// Descriptor declares one PKI participant and its generation policy.
type Descriptor struct {
	// Name is unique and doubles as the artifact directory name.
	Name string `yaml:"name"`
	// DN is the certificate subject.
	DN DistinguishedName `yaml:"dn"`
	// Signer names the CA that signs this entity. Empty means self-signed root.
	Signer string `yaml:"signer,omitempty"`
	// Password, when set, encrypts the private key.
	Password Password `yaml:"password,omitempty"`
	// Encoding selects the private-key container.
	Encoding KeyEncoding `yaml:"encoding,omitempty"`
	// AltNames are DNS subjectAltName entries, in order.
	AltNames []string `yaml:"alt_names,omitempty"`
}

// IsRoot reports whether d is a self-signed CA.
func (d Descriptor) IsRoot() bool {
	return d.Signer == ""
}

// Paths returns d's artifact locations relative to the output root.
func (d Descriptor) Paths() Paths {
	return PathsFor(d.Name)
}

func (d Descriptor) String() string {
	if d.IsRoot() {
		return fmt.Sprintf("%s (root, %s)", d.Name, d.DN)
	}
	return fmt.Sprintf("%s (signed by %s, %s)", d.Name, d.Signer, d.DN)
}

// Paths are the canonical artifact locations of one entity, relative to the
// output root and always slash-separated so rendered configs are stable
// across platforms.
type Paths struct {
	Dir    string
	Key    string
	CSR    string
	Cert   string
	Chain  string
	Config string
	Index  string
	CRL    string
	// CRLNumber holds the number of the next CRL this entity publishes.
	CRLNumber string
	// Serial is the serial-number file written when this entity signs with
	// create-serial.
	Serial string
}

// PathsFor derives Paths from an entity name.
func PathsFor(name string) Paths {
	return Paths{
		Dir:       name,
		Key:       path.Join(name, "key.pem"),
		CSR:       path.Join(name, "csr.pem"),
		Cert:      path.Join(name, "cert.pem"),
		Chain:     path.Join(name, "cert_chain.pem"),
		Config:    path.Join(name, "openssl.cnf"),
		Index:     path.Join(name, "index.txt"),
		CRL:       path.Join(name, "crl.pem"),
		CRLNumber: path.Join(name, "crlnumber"),
		Serial:    path.Join(name, "cert.srl"),
	}
}
