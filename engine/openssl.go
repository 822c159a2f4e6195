package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jmcleod/sslfixture/entity"
)

// Environment variables used to hand passwords to openssl. Only the
// variable name ever appears on the command line.
const (
	passInEnv  = "SSLFIXTURE_PASSIN"
	passOutEnv = "SSLFIXTURE_PASSOUT"
)

// DefaultPKCS8Scheme is the password-based encryption used for encrypted
// PKCS#8 keys.
var DefaultPKCS8Scheme = []string{"-v2", "aes-128-cbc"}

// OpenSSL implements Engine by running the openssl command-line tool with
// Dir as working directory.
type OpenSSL struct {
	binary      string
	dir         string
	pkcs8Scheme []string
	logger      *slog.Logger
}

// Option configures an OpenSSL engine.
type Option func(*OpenSSL)

// WithBinary sets the openssl executable. Defaults to "openssl" on PATH.
func WithBinary(path string) Option {
	return func(o *OpenSSL) {
		if path != "" {
			o.binary = path
		}
	}
}

// WithLogger sets the logger used for per-invocation debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *OpenSSL) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPKCS8Scheme overrides the pkcs8 encryption arguments, for example
// WithPKCS8Scheme("-v1", "PBE-SHA1-RC4-128").
func WithPKCS8Scheme(args ...string) Option {
	return func(o *OpenSSL) {
		if len(args) > 0 {
			o.pkcs8Scheme = append([]string(nil), args...)
		}
	}
}

// NewOpenSSL returns an engine rooted at dir.
func NewOpenSSL(dir string, opts ...Option) *OpenSSL {
	o := &OpenSSL{
		binary:      "openssl",
		dir:         dir,
		pkcs8Scheme: DefaultPKCS8Scheme,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dir returns the working directory the engine resolves paths against.
func (o *OpenSSL) Dir() string { return o.dir }

// invocation is a single openssl process.
type invocation struct {
	op    string
	args  []string
	stdin []byte
	env   []string
}

func (o *OpenSSL) run(ctx context.Context, inv invocation) ([]byte, error) {
	cmd := exec.CommandContext(ctx, o.binary, inv.args...)
	cmd.Dir = o.dir
	// Always provide stdin so a missing password fails instead of prompting.
	cmd.Stdin = bytes.NewReader(inv.stdin)
	cmd.Env = append(os.Environ(), inv.env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	o.logger.Debug("running openssl",
		slog.String("op", inv.op),
		slog.String("args", strings.Join(inv.args, " ")),
	)
	if err := cmd.Run(); err != nil {
		ierr := &InvocationError{
			Op:       inv.op,
			Args:     inv.args,
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ierr.ExitCode = exitErr.ExitCode()
		}
		return nil, ierr
	}
	return stdout.Bytes(), nil
}

// withPassword opens p and returns an environment assignment for name.
// The assignment is empty when no password is set.
func withPassword(p entity.Password, name string) ([]string, error) {
	if !p.IsSet() {
		return []string{name + "="}, nil
	}
	var env []string
	err := p.Use(func(secret []byte) error {
		env = []string{name + "=" + string(secret)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening password: %w", err)
	}
	return env, nil
}

func (o *OpenSSL) GenerateKey(ctx context.Context, req KeyRequest) error {
	curve := req.Curve
	if curve == "" {
		curve = Curve
	}
	raw, err := o.run(ctx, invocation{
		op:   "ecparam",
		args: []string{"ecparam", "-genkey", "-noout", "-name", curve},
	})
	if err != nil {
		return err
	}

	passEnv, err := withPassword(req.Password, passOutEnv)
	if err != nil {
		return err
	}

	if req.Encoding == entity.PKCS8 {
		legacy, err := o.run(ctx, invocation{op: "ec", args: []string{"ec"}, stdin: raw})
		if err != nil {
			return err
		}
		args := []string{"pkcs8", "-topk8", "-out", req.Out}
		if req.Password.IsSet() {
			args = append(args, o.pkcs8Scheme...)
			args = append(args, "-passout", "env:"+passOutEnv)
		} else {
			args = append(args, "-nocrypt")
		}
		_, err = o.run(ctx, invocation{op: "pkcs8", args: args, stdin: legacy, env: passEnv})
		return err
	}

	args := []string{"ec", "-out", req.Out}
	if req.Password.IsSet() {
		args = append(args, "-aes128", "-passout", "env:"+passOutEnv)
	}
	_, err = o.run(ctx, invocation{op: "ec", args: args, stdin: raw, env: passEnv})
	return err
}

func (o *OpenSSL) SelfSign(ctx context.Context, req SelfSignRequest) error {
	passEnv, err := withPassword(req.KeyPassword, passInEnv)
	if err != nil {
		return err
	}
	_, err = o.run(ctx, invocation{
		op: "req -x509",
		args: []string{
			"req", "-x509", "-new", "-nodes",
			"-key", req.Key,
			"-passin", "env:" + passInEnv,
			"-days", days(req.Days),
			"-" + digest(req.Digest),
			"-config", req.Config,
			"-out", req.Out,
		},
		env: passEnv,
	})
	return err
}

func (o *OpenSSL) CreateCSR(ctx context.Context, req CSRRequest) error {
	passEnv, err := withPassword(req.KeyPassword, passInEnv)
	if err != nil {
		return err
	}
	_, err = o.run(ctx, invocation{
		op: "req",
		args: []string{
			"req", "-new",
			"-key", req.Key,
			"-passin", "env:" + passInEnv,
			"-config", req.Config,
			"-out", req.Out,
		},
		env: passEnv,
	})
	return err
}

func (o *OpenSSL) SignCSR(ctx context.Context, req SignRequest) (string, error) {
	passEnv, err := withPassword(req.SignerKeyPassword, passInEnv)
	if err != nil {
		return "", err
	}
	args := []string{
		"x509", "-req",
		"-in", req.CSR,
		"-CA", req.SignerCert,
		"-CAkey", req.SignerKey,
		"-passin", "env:" + passInEnv,
		"-CAserial", req.SerialFile,
	}
	if req.CreateSerial {
		args = append(args, "-CAcreateserial")
	}
	args = append(args,
		"-days", days(req.Days),
		"-"+digest(req.Digest),
		"-out", req.Out,
	)
	if req.ExtFile != "" {
		args = append(args, "-extfile", req.ExtFile, "-extensions", req.Extensions)
	}
	if _, err := o.run(ctx, invocation{op: "x509 -req", args: args, env: passEnv}); err != nil {
		return "", err
	}
	return o.Serial(ctx, req.Out)
}

// Serial returns the hex serial number of the certificate at cert.
func (o *OpenSSL) Serial(ctx context.Context, cert string) (string, error) {
	out, err := o.run(ctx, invocation{
		op:   "x509 -serial",
		args: []string{"x509", "-in", cert, "-noout", "-serial"},
	})
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(out))
	serial, ok := strings.CutPrefix(line, "serial=")
	if !ok || serial == "" {
		return "", &InvocationError{
			Op:       "x509 -serial",
			Args:     []string{"x509", "-in", cert, "-noout", "-serial"},
			ExitCode: -1,
			Err:      fmt.Errorf("unexpected output %q", line),
		}
	}
	return serial, nil
}

func (o *OpenSSL) Revoke(ctx context.Context, req RevokeRequest) error {
	passEnv, err := withPassword(req.SignerKeyPassword, passInEnv)
	if err != nil {
		return err
	}
	_, err = o.run(ctx, invocation{
		op: "ca -revoke",
		args: []string{
			"ca", "-revoke", req.Target,
			"-config", req.SignerConfig,
			"-cert", req.SignerCert,
			"-keyfile", req.SignerKey,
			"-passin", "env:" + passInEnv,
		},
		env: passEnv,
	})
	return err
}

func (o *OpenSSL) GenerateCRL(ctx context.Context, req CRLRequest) error {
	passEnv, err := withPassword(req.SignerKeyPassword, passInEnv)
	if err != nil {
		return err
	}
	_, err = o.run(ctx, invocation{
		op: "ca -gencrl",
		args: []string{
			"ca", "-gencrl",
			"-config", req.SignerConfig,
			"-cert", req.SignerCert,
			"-keyfile", req.SignerKey,
			"-passin", "env:" + passInEnv,
			"-out", req.Out,
		},
		env: passEnv,
	})
	return err
}

// CheckKey loads the private key at path with password, failing when the
// password is wrong or missing.
func (o *OpenSSL) CheckKey(ctx context.Context, path string, password entity.Password) error {
	passEnv, err := withPassword(password, passInEnv)
	if err != nil {
		return err
	}
	_, err = o.run(ctx, invocation{
		op:   "pkey",
		args: []string{"pkey", "-in", path, "-noout", "-passin", "env:" + passInEnv},
		env:  passEnv,
	})
	return err
}

// Version reports the openssl version string.
func (o *OpenSSL) Version(ctx context.Context) (string, error) {
	out, err := o.run(ctx, invocation{op: "version", args: []string{"version"}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func days(n int) string {
	if n <= 0 {
		n = DefaultValidityDays
	}
	return strconv.Itoa(n)
}

func digest(d string) string {
	if d == "" {
		return Digest
	}
	return d
}
