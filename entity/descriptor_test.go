package entity_test

import (
	"testing"

	"github.com/jmcleod/sslfixture/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestPathsFor(t *testing.T) {
	p := entity.PathsFor("localhost1")
	assert.Equal(t, entity.Paths{
		Dir:       "localhost1",
		Key:       "localhost1/key.pem",
		CSR:       "localhost1/csr.pem",
		Cert:      "localhost1/cert.pem",
		Chain:     "localhost1/cert_chain.pem",
		Config:    "localhost1/openssl.cnf",
		Index:     "localhost1/index.txt",
		CRL:       "localhost1/crl.pem",
		CRLNumber: "localhost1/crlnumber",
		Serial:    "localhost1/cert.srl",
	}, p)
}

func TestDescriptor_IsRoot(t *testing.T) {
	assert.True(t, entity.Descriptor{Name: "ca"}.IsRoot())
	assert.False(t, entity.Descriptor{Name: "l", Signer: "ca"}.IsRoot())
}

func TestKeyEncoding(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want entity.KeyEncoding
	}{
		{"", entity.Legacy},
		{"legacy", entity.Legacy},
		{"PKCS8", entity.PKCS8},
		{" pkcs8 ", entity.PKCS8},
	} {
		got, err := entity.ParseKeyEncoding(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := entity.ParseKeyEncoding("der")
	assert.ErrorIs(t, err, entity.ErrInvalid)
	assert.Equal(t, "pkcs8", entity.PKCS8.String())
}

func TestDescriptor_UnmarshalYAML(t *testing.T) {
	src := `
name: localhost2
dn: /OU=Localhost2/CN=localhost
signer: ca
password: localhost2-password
encoding: pkcs8
alt_names: [localhost, "*.localhost"]
`
	var d entity.Descriptor
	require.NoError(t, yaml.Unmarshal([]byte(src), &d))
	assert.Equal(t, "localhost2", d.Name)
	assert.Equal(t, "ca", d.Signer)
	assert.Equal(t, entity.PKCS8, d.Encoding)
	assert.Equal(t, entity.DistinguishedName{{Type: "OU", Value: "Localhost2"}, {Type: "CN", Value: "localhost"}}, d.DN)
	assert.Equal(t, []string{"localhost", "*.localhost"}, d.AltNames)
	assert.True(t, d.Password.IsSet())
	assert.Equal(t, "[REDACTED]", d.Password.String())
	require.NoError(t, d.Validate())
}
