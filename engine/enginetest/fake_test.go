package enginetest_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmcleod/sslfixture/engine"
	"github.com/jmcleod/sslfixture/engine/enginetest"
	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_KeyContainers(t *testing.T) {
	dir := t.TempDir()
	f := enginetest.New(dir)

	cases := map[string]struct {
		req  engine.KeyRequest
		want string
	}{
		"legacy.pem":     {engine.KeyRequest{Encoding: entity.Legacy}, enginetest.TypeLegacyKey},
		"legacy-enc.pem": {engine.KeyRequest{Encoding: entity.Legacy, Password: entity.NewPassword("x")}, enginetest.TypeLegacyKey},
		"pkcs8.pem":      {engine.KeyRequest{Encoding: entity.PKCS8}, enginetest.TypePKCS8Key},
		"pkcs8-enc.pem":  {engine.KeyRequest{Encoding: entity.PKCS8, Password: entity.NewPassword("x")}, enginetest.TypeEncryptedKey},
	}
	for out, c := range cases {
		c.req.Out = out
		require.NoError(t, f.GenerateKey(t.Context(), c.req))
		blocks, err := enginetest.ReadBlocks(filepath.Join(dir, out))
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, c.want, blocks[0].Type, out)
	}

	blocks, err := enginetest.ReadBlocks(filepath.Join(dir, "legacy-enc.pem"))
	require.NoError(t, err)
	assert.Equal(t, "4,ENCRYPTED", blocks[0].Headers["Proc-Type"])
}

func TestFake_SignRevokeCRL(t *testing.T) {
	dir := t.TempDir()
	f := enginetest.New(dir)
	ctx := t.Context()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ca"), 0o755))
	for _, name := range []string{"ca/key.pem", "ca/openssl.cnf", "ca/index.txt", "leaf.csr"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, f.SelfSign(ctx, engine.SelfSignRequest{Key: "ca/key.pem", Config: "ca/openssl.cnf", Out: "ca/cert.pem"}))

	sign := engine.SignRequest{
		CSR: "leaf.csr", SignerCert: "ca/cert.pem", SignerKey: "ca/key.pem",
		SerialFile: "ca/cert.srl", CreateSerial: true, Out: "leaf.pem",
	}
	serial, err := f.SignCSR(ctx, sign)
	require.NoError(t, err)
	assert.Equal(t, "1000", serial)

	sign.Out = "other.pem"
	other, err := f.SignCSR(ctx, sign)
	require.NoError(t, err)
	assert.Equal(t, "1001", other)

	require.NoError(t, index.Append(filepath.Join(dir, "ca/index.txt"), index.Entry{
		Status: index.Valid, Expiry: time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC), Serial: serial, Subject: "/CN=leaf",
	}))

	revoke := engine.RevokeRequest{Target: "leaf.pem", SignerConfig: "ca/openssl.cnf", SignerCert: "ca/cert.pem", SignerKey: "ca/key.pem"}
	require.NoError(t, f.Revoke(ctx, revoke))
	err = f.Revoke(ctx, revoke)
	assert.ErrorIs(t, err, enginetest.ErrAlreadyRevoked)
	assert.ErrorIs(t, err, engine.ErrInvocation)

	require.NoError(t, f.GenerateCRL(ctx, engine.CRLRequest{SignerConfig: "ca/openssl.cnf", SignerCert: "ca/cert.pem", SignerKey: "ca/key.pem", Out: "ca/crl.pem"}))
	revoked, err := enginetest.CRLSerials(filepath.Join(dir, "ca/crl.pem"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1000"}, revoked)
	number, err := enginetest.CRLNumber(filepath.Join(dir, "ca/crl.pem"))
	require.NoError(t, err)
	assert.Empty(t, number)

	assert.Equal(t, []string{
		enginetest.OpSelfSign, enginetest.OpSignCSR, enginetest.OpSignCSR,
		enginetest.OpRevoke, enginetest.OpRevoke, enginetest.OpGenerateCRL,
	}, f.Ops())
}

func TestFake_NumberedCRL(t *testing.T) {
	dir := t.TempDir()
	f := enginetest.New(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ca"), 0o755))
	for _, name := range []string{"ca/key.pem", "ca/openssl.cnf", "ca/cert.pem", "ca/index.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ca/crlnumber"), []byte("01\n"), 0o644))

	req := engine.CRLRequest{SignerConfig: "ca/openssl.cnf", SignerCert: "ca/cert.pem", SignerKey: "ca/key.pem", Out: "ca/crl.pem"}
	for _, want := range []string{"01", "02"} {
		require.NoError(t, f.GenerateCRL(t.Context(), req))
		number, err := enginetest.CRLNumber(filepath.Join(dir, "ca/crl.pem"))
		require.NoError(t, err)
		assert.Equal(t, want, number)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "ca/crlnumber"))
	require.NoError(t, err)
	assert.Equal(t, "03\n", string(raw))
}

func TestFake_SignWithoutSerialFile(t *testing.T) {
	dir := t.TempDir()
	f := enginetest.New(dir)
	for _, name := range []string{"csr", "cert", "key"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	_, err := f.SignCSR(t.Context(), engine.SignRequest{CSR: "csr", SignerCert: "cert", SignerKey: "key", SerialFile: "srl", Out: "out"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFake_FailOn(t *testing.T) {
	f := enginetest.New(t.TempDir())
	boom := errors.New("boom")
	f.FailOn(enginetest.OpGenerateKey, boom)

	err := f.GenerateKey(t.Context(), engine.KeyRequest{Out: "key.pem"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, engine.ErrInvocation)
	assert.Equal(t, []string{enginetest.OpGenerateKey}, f.Ops())
}
