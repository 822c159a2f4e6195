package entity_test

import (
	"testing"

	"github.com/jmcleod/sslfixture/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDN(t *testing.T) {
	dn, err := entity.ParseDN("/OU=Fake Localhost1/CN=localhost")
	require.NoError(t, err)
	assert.Equal(t, entity.DistinguishedName{
		{Type: "OU", Value: "Fake Localhost1"},
		{Type: "CN", Value: "localhost"},
	}, dn)
	assert.Equal(t, "/OU=Fake Localhost1/CN=localhost", dn.String())
	assert.Equal(t, "localhost", dn.CommonName())
}

func TestParseDN_Errors(t *testing.T) {
	for _, in := range []string{"", "/", "//", "/CN"} {
		_, err := entity.ParseDN(in)
		assert.ErrorIs(t, err, entity.ErrInvalid, "input %q", in)
	}
}

func TestMustParseDN_Panics(t *testing.T) {
	assert.Panics(t, func() { entity.MustParseDN("no-equals") })
}

func TestDistinguishedName_Oneline(t *testing.T) {
	tests := []struct {
		in   entity.DistinguishedName
		want string
	}{
		{entity.MustParseDN("/OU=Localhost1/CN=localhost"), "/OU=Localhost1/CN=localhost"},
		{entity.MustParseDN("/CN=Café"), `/CN=Caf\xC3\xA9`},
		{entity.DistinguishedName{{Type: "CN", Value: "cafe\u0301"}}, `/CN=caf\xC3\xA9`},
		{entity.DistinguishedName{
			{Type: "organizationalUnitName", Value: "Dev"},
			{Type: "commonName", Value: "x"},
		}, "/OU=Dev/CN=x"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.in.Oneline(), tc.in.String())
	}
}
