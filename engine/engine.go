// Package engine defines the narrow interface through which fixture
// generation delegates all cryptography: key generation, self-signing, CSR
// creation, CA signing, revocation and CRL generation. Implementations
// read and write artifacts by path; callers treat those artifacts as opaque.
//
// All paths in requests are relative to the implementation's working
// directory (the fixture output root).
package engine

import (
	"context"

	"github.com/jmcleod/sslfixture/entity"
)

// Issuance policy shared by every entity.
const (
	Curve               = "secp256r1"
	Digest              = "sha256"
	DefaultValidityDays = 3650
)

// Engine performs the cryptographic operations of the fixture PKI. Every
// method blocks until the operation has finished and its output exists.
type Engine interface {
	// GenerateKey writes a new private key to req.Out.
	GenerateKey(ctx context.Context, req KeyRequest) error
	// SelfSign writes a self-signed root certificate to req.Out.
	SelfSign(ctx context.Context, req SelfSignRequest) error
	// CreateCSR writes a certificate signing request to req.Out.
	CreateCSR(ctx context.Context, req CSRRequest) error
	// SignCSR writes a CA-signed certificate to req.Out and returns the hex
	// serial number it was assigned.
	SignCSR(ctx context.Context, req SignRequest) (serial string, err error)
	// Revoke records req.Target as revoked in the signer's index.
	Revoke(ctx context.Context, req RevokeRequest) error
	// GenerateCRL writes a CRL reflecting the signer's index to req.Out,
	// replacing any previous CRL at that path.
	GenerateCRL(ctx context.Context, req CRLRequest) error
}

// KeyRequest asks for a new key pair on Curve. The four combinations of
// Encoding and Password select the container format.
type KeyRequest struct {
	Out      string
	Curve    string
	Encoding entity.KeyEncoding
	Password entity.Password
}

// SelfSignRequest asks for a root certificate over Key.
type SelfSignRequest struct {
	Key         string
	KeyPassword entity.Password
	Config      string
	Days        int
	Digest      string
	Out         string
}

// CSRRequest asks for a signing request over Key, with the subject taken
// from Config.
type CSRRequest struct {
	Key         string
	KeyPassword entity.Password
	Config      string
	Out         string
}

// SignRequest asks the signer to issue a certificate for CSR.
type SignRequest struct {
	CSR               string
	SignerCert        string
	SignerKey         string
	SignerKeyPassword entity.Password
	// SerialFile is the signer's serial counter; created on first use when
	// CreateSerial is set.
	SerialFile   string
	CreateSerial bool
	Days         int
	Digest       string
	// ExtFile and Extensions name the config file and section holding the
	// extensions to apply.
	ExtFile    string
	Extensions string
	Out        string
}

// RevokeRequest asks the signer to revoke the certificate at Target.
type RevokeRequest struct {
	Target            string
	SignerConfig      string
	SignerCert        string
	SignerKey         string
	SignerKeyPassword entity.Password
}

// CRLRequest asks the signer for a CRL. Validity comes from SignerConfig.
type CRLRequest struct {
	SignerConfig      string
	SignerCert        string
	SignerKey         string
	SignerKeyPassword entity.Password
	Out               string
}
