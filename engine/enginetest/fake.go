// Package enginetest provides an in-process engine.Engine for tests. It
// writes recognisable PEM placeholders instead of real cryptographic
// material and keeps serials and revocation state in the same files the
// real engine uses.
package enginetest

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/sslfixture/engine"
	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/index"
)

// Operation names used by Calls and FailOn.
const (
	OpGenerateKey = "GenerateKey"
	OpSelfSign    = "SelfSign"
	OpCreateCSR   = "CreateCSR"
	OpSignCSR     = "SignCSR"
	OpRevoke      = "Revoke"
	OpGenerateCRL = "GenerateCRL"
)

// PEM block types written by GenerateKey, one per container format.
const (
	TypeLegacyKey    = "EC PRIVATE KEY"
	TypePKCS8Key     = "PRIVATE KEY"
	TypeEncryptedKey = "ENCRYPTED PRIVATE KEY"
	TypeCertificate  = "CERTIFICATE"
	TypeCSR          = "CERTIFICATE REQUEST"
	TypeCRL          = "X509 CRL"
)

// ErrAlreadyRevoked mirrors the real engine refusing a second revocation.
var ErrAlreadyRevoked = errors.New("already revoked")

// Call records one engine invocation.
type Call struct {
	Op  string
	Out string
}

// Fake is a deterministic engine.Engine rooted at a directory.
type Fake struct {
	dir string
	now func() time.Time

	mu       sync.Mutex
	calls    []Call
	failures map[string]error
}

var _ engine.Engine = (*Fake)(nil)

// New returns a Fake that resolves request paths against dir.
func New(dir string) *Fake {
	return &Fake{
		dir:      dir,
		now:      func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears
// the failure.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Calls returns the invocations so far, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns just the operation names of Calls.
func (f *Fake) Ops() []string {
	calls := f.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

func (f *Fake) record(op, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Out: out})
	if err := f.failures[op]; err != nil {
		return &engine.InvocationError{Op: op, ExitCode: 1, Stderr: err.Error(), Err: err}
	}
	return nil
}

func (f *Fake) abs(p string) string {
	return filepath.Join(f.dir, filepath.FromSlash(p))
}

func (f *Fake) require(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(f.abs(p)); err != nil {
			return fmt.Errorf("fake engine: %w", err)
		}
	}
	return nil
}

func (f *Fake) write(p string, block *pem.Block) error {
	return os.WriteFile(f.abs(p), pem.EncodeToMemory(block), 0o644)
}

func (f *Fake) GenerateKey(_ context.Context, req engine.KeyRequest) error {
	if err := f.record(OpGenerateKey, req.Out); err != nil {
		return err
	}
	block := &pem.Block{Bytes: []byte("key:" + req.Out)}
	switch {
	case req.Encoding == entity.PKCS8 && req.Password.IsSet():
		block.Type = TypeEncryptedKey
	case req.Encoding == entity.PKCS8:
		block.Type = TypePKCS8Key
	case req.Password.IsSet():
		block.Type = TypeLegacyKey
		block.Headers = map[string]string{
			"Proc-Type": "4,ENCRYPTED",
			"DEK-Info":  "AES-128-CBC,00000000000000000000000000000000",
		}
	default:
		block.Type = TypeLegacyKey
	}
	return f.write(req.Out, block)
}

func (f *Fake) SelfSign(_ context.Context, req engine.SelfSignRequest) error {
	if err := f.record(OpSelfSign, req.Out); err != nil {
		return err
	}
	if err := f.require(req.Key, req.Config); err != nil {
		return err
	}
	return f.write(req.Out, certBlock(req.Out, "01", req.Out))
}

func (f *Fake) CreateCSR(_ context.Context, req engine.CSRRequest) error {
	if err := f.record(OpCreateCSR, req.Out); err != nil {
		return err
	}
	if err := f.require(req.Key, req.Config); err != nil {
		return err
	}
	return f.write(req.Out, &pem.Block{Type: TypeCSR, Bytes: []byte("csr:" + req.Out)})
}

func (f *Fake) SignCSR(_ context.Context, req engine.SignRequest) (string, error) {
	if err := f.record(OpSignCSR, req.Out); err != nil {
		return "", err
	}
	if err := f.require(req.CSR, req.SignerCert, req.SignerKey); err != nil {
		return "", err
	}
	serial, err := f.nextSerial(req.SerialFile, req.CreateSerial)
	if err != nil {
		return "", err
	}
	if err := f.write(req.Out, certBlock(req.Out, serial, req.SignerCert)); err != nil {
		return "", err
	}
	return serial, nil
}

// nextSerial advances the counter in file the way -CAserial does: the
// stored value is the serial just used.
func (f *Fake) nextSerial(file string, create bool) (string, error) {
	var next uint64 = 0x1000
	raw, err := os.ReadFile(f.abs(file))
	switch {
	case err == nil:
		cur, perr := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 64)
		if perr != nil {
			return "", fmt.Errorf("fake engine: serial file %s: %w", file, perr)
		}
		next = cur + 1
	case errors.Is(err, os.ErrNotExist) && create:
	default:
		return "", fmt.Errorf("fake engine: %w", err)
	}
	serial := index.CanonicalSerial(strconv.FormatUint(next, 16))
	if err := os.WriteFile(f.abs(file), []byte(serial+"\n"), 0o644); err != nil {
		return "", err
	}
	return serial, nil
}

func (f *Fake) Revoke(_ context.Context, req engine.RevokeRequest) error {
	if err := f.record(OpRevoke, req.Target); err != nil {
		return err
	}
	if err := f.require(req.SignerConfig, req.SignerCert, req.SignerKey); err != nil {
		return err
	}
	serial, err := CertSerial(f.abs(req.Target))
	if err != nil {
		return err
	}
	idx := f.abs(path.Join(path.Dir(req.SignerConfig), "index.txt"))
	entries, err := index.Read(idx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.Serial != serial {
			continue
		}
		if e.Status == index.Revoked {
			return &engine.InvocationError{Op: OpRevoke, ExitCode: 1, Stderr: "ERROR:Already revoked, serial number " + serial, Err: ErrAlreadyRevoked}
		}
		entries[i].Status = index.Revoked
		entries[i].RevokedAt = f.now()
		return index.Write(idx, entries)
	}
	return &engine.InvocationError{Op: OpRevoke, ExitCode: 1, Stderr: "serial " + serial + " not in database"}
}

func (f *Fake) GenerateCRL(_ context.Context, req engine.CRLRequest) error {
	if err := f.record(OpGenerateCRL, req.Out); err != nil {
		return err
	}
	if err := f.require(req.SignerConfig, req.SignerCert, req.SignerKey); err != nil {
		return err
	}
	dir := path.Dir(req.SignerConfig)
	entries, err := index.Read(f.abs(path.Join(dir, "index.txt")))
	if err != nil {
		return err
	}
	var revoked []string
	for _, e := range index.RevokedEntries(entries) {
		revoked = append(revoked, e.Serial)
	}
	headers := map[string]string{"Issuer": req.SignerCert, "Revoked": strings.Join(revoked, ",")}
	number, err := f.nextCRLNumber(path.Join(dir, "crlnumber"))
	if err != nil {
		return err
	}
	if number != "" {
		headers["Number"] = number
	}
	return f.write(req.Out, &pem.Block{
		Type:    TypeCRL,
		Headers: headers,
		Bytes:   []byte("crl:" + req.SignerCert),
	})
}

// nextCRLNumber returns the number stored in file and advances it. Without
// the file the CRL is unnumbered, as the real engine's v1 CRLs are.
func (f *Fake) nextCRLNumber(file string) (string, error) {
	raw, err := os.ReadFile(f.abs(file))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fake engine: %w", err)
	}
	cur, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 64)
	if err != nil {
		return "", fmt.Errorf("fake engine: crlnumber file %s: %w", file, err)
	}
	next := index.CanonicalSerial(strconv.FormatUint(cur+1, 16))
	if err := os.WriteFile(f.abs(file), []byte(next+"\n"), 0o644); err != nil {
		return "", err
	}
	return index.CanonicalSerial(strconv.FormatUint(cur, 16)), nil
}

func certBlock(out, serial, issuer string) *pem.Block {
	return &pem.Block{
		Type:    TypeCertificate,
		Headers: map[string]string{"Serial": serial, "Issuer": issuer},
		Bytes:   []byte("cert:" + out),
	}
}

// CertSerial reads the serial of a certificate written by Fake.
func CertSerial(file string) (string, error) {
	block, err := readBlock(file, TypeCertificate)
	if err != nil {
		return "", err
	}
	return block.Headers["Serial"], nil
}

// CRLSerials lists the revoked serials of a CRL written by Fake.
func CRLSerials(file string) ([]string, error) {
	block, err := readBlock(file, TypeCRL)
	if err != nil {
		return nil, err
	}
	if block.Headers["Revoked"] == "" {
		return nil, nil
	}
	return strings.Split(block.Headers["Revoked"], ","), nil
}

// CRLNumber returns the number of a CRL written by Fake, or "" for an
// unnumbered CRL.
func CRLNumber(file string) (string, error) {
	block, err := readBlock(file, TypeCRL)
	if err != nil {
		return "", err
	}
	return block.Headers["Number"], nil
}

// ReadBlocks decodes every PEM block in file.
func ReadBlocks(file string) ([]*pem.Block, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var blocks []*pem.Block
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			return blocks, nil
		}
		blocks = append(blocks, block)
	}
}

func readBlock(file, want string) (*pem.Block, error) {
	blocks, err := ReadBlocks(file)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 || blocks[0].Type != want {
		return nil, fmt.Errorf("%s: no %s block", file, want)
	}
	return blocks[0], nil
}
