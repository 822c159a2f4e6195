package verify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/sslfixture/entity"
)

// Report is the outcome of checking one entity's artifacts.
type Report struct {
	Entity    string
	Signer    string
	Serial    string
	Container KeyContainer
	// CRLChecked is set when the signer had a CRL to check against.
	CRLChecked bool
	Revoked    bool
	Err        error
}

// OK reports whether every check passed. A revoked leaf is still OK: the
// revocation was requested.
func (r Report) OK() bool { return r.Err == nil }

// Entity checks the artifacts of d under root: the key container matches
// d's encoding and password, roots are self-signed CAs and leaf chains
// verify against the signer's certificate. When the signer has published a
// CRL, Revoked tells whether d is on it.
func Entity(root string, d entity.Descriptor) Report {
	r := Report{Entity: d.Name, Signer: d.Signer}
	abs := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	paths := d.Paths()

	container, err := ClassifyKey(abs(paths.Key))
	if err != nil {
		r.Err = err
		return r
	}
	r.Container = container
	if want := expectedContainer(d); container != want {
		r.Err = fmt.Errorf("key container is %s, want %s", container, want)
		return r
	}

	if d.IsRoot() {
		cert, err := Certificate(abs(paths.Cert))
		if err != nil {
			r.Err = err
			return r
		}
		r.Serial = SerialText(cert.SerialNumber)
		r.Err = SelfSigned(cert)
		return r
	}

	sp := entity.PathsFor(d.Signer)
	leaf, err := Chain(abs(paths.Chain), abs(sp.Cert))
	if err != nil {
		r.Err = err
		return r
	}
	r.Serial = SerialText(leaf.SerialNumber)

	if _, err := os.Stat(abs(sp.CRL)); errors.Is(err, os.ErrNotExist) {
		return r
	}
	issuer, err := Certificate(abs(sp.Cert))
	if err != nil {
		r.Err = err
		return r
	}
	crl, err := LoadCRL(abs(sp.CRL), issuer)
	if err != nil {
		r.Err = err
		return r
	}
	r.CRLChecked = true
	r.Revoked = errors.Is(CheckRevocation(leaf, crl), ErrRevoked)
	return r
}

func expectedContainer(d entity.Descriptor) KeyContainer {
	switch {
	case d.Encoding == entity.PKCS8 && d.Password.IsSet():
		return PKCS8Encrypted
	case d.Encoding == entity.PKCS8:
		return PKCS8Plain
	case d.Password.IsSet():
		return LegacyEncrypted
	default:
		return LegacyPlain
	}
}
