package entity_test

import (
	"testing"

	"github.com/jmcleod/sslfixture/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassword(t *testing.T) {
	var zero entity.Password
	assert.False(t, zero.IsSet())
	assert.Equal(t, "", zero.String())
	got, err := zero.Reveal()
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.False(t, entity.NewPassword("").IsSet())

	p := entity.NewPassword("localhost1-password")
	assert.True(t, p.IsSet())
	assert.NotContains(t, p.String(), "localhost1")

	var seen string
	require.NoError(t, p.Use(func(secret []byte) error {
		seen = string(secret)
		return nil
	}))
	assert.Equal(t, "localhost1-password", seen)

	// The enclave can be opened repeatedly.
	again, err := p.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "localhost1-password", again)
}
