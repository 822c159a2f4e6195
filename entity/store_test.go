package entity_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmcleod/sslfixture/entity"
	bboltstorage "github.com/jmcleod/sslfixture/storage/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func root(name, dn string) entity.Descriptor {
	return entity.Descriptor{Name: name, DN: entity.MustParseDN(dn)}
}

func leaf(name, dn, signer string) entity.Descriptor {
	return entity.Descriptor{Name: name, DN: entity.MustParseDN(dn), Signer: signer}
}

func TestStore_RegisterDuplicate(t *testing.T) {
	s := entity.NewStore(nil)
	require.NoError(t, s.Register(root("ca", "/CN=EasySSL CA")))

	err := s.Register(root("ca", "/CN=Other"))
	var dup *entity.DuplicateEntityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ca", dup.Name)
	assert.ErrorIs(t, err, entity.ErrDuplicateEntity)
}

func TestStore_Resolve(t *testing.T) {
	s := entity.NewStore(nil)
	require.NoError(t, s.Register(root("ca", "/CN=EasySSL CA")))

	d, err := s.Resolve("ca")
	require.NoError(t, err)
	assert.Equal(t, "ca", d.Name)

	_, err = s.Resolve("missing_ca")
	var unknown *entity.UnknownSignerError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing_ca", unknown.Signer)
	assert.ErrorIs(t, err, entity.ErrUnknownSigner)
}

func TestStore_ResolveSignerRequiresIssued(t *testing.T) {
	s := entity.NewStore(nil)
	ca := root("ca", "/CN=EasySSL CA")
	require.NoError(t, s.Register(ca))

	signee := leaf("localhost1", "/OU=Localhost1/CN=localhost", "ca")
	_, err := s.ResolveSigner(signee)
	var unknown *entity.UnknownSignerError
	require.ErrorAs(t, err, &unknown, "registered but unissued signer must not resolve")
	assert.Equal(t, "localhost1", unknown.Entity)
	assert.Contains(t, err.Error(), `"ca"`)

	require.NoError(t, s.MarkIssued("ca", "", time.Now()))
	got, err := s.ResolveSigner(signee)
	require.NoError(t, err)
	assert.Equal(t, "ca", got.Name)
}

func TestStore_Lookup(t *testing.T) {
	s := entity.NewStore(nil)
	_, err := s.Lookup("nope")
	var unknown *entity.UnknownEntityError
	require.ErrorAs(t, err, &unknown)
	assert.ErrorIs(t, err, entity.ErrUnknownEntity)
}

func TestStore_MarkIssuedOnce(t *testing.T) {
	s := entity.NewStore(nil)
	require.NoError(t, s.Register(root("ca", "/CN=EasySSL CA")))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.MarkIssued("ca", "", at))

	rec, ok := s.Record("ca")
	require.True(t, ok)
	assert.Equal(t, entity.StatusIssued, rec.Status)
	assert.Equal(t, at, rec.IssuedAt)

	assert.Error(t, s.MarkIssued("ca", "", at))
	assert.ErrorIs(t, s.MarkIssued("ghost", "", at), entity.ErrUnknownEntity)
}

func TestStore_GraphOrderAndSignees(t *testing.T) {
	s := entity.NewStore(nil)
	for _, d := range []entity.Descriptor{
		root("ca", "/CN=EasySSL CA"),
		root("fake_ca", "/CN=EasySSL Fake CA"),
		leaf("localhost1", "/OU=Localhost1/CN=localhost", "ca"),
		leaf("localhost2", "/OU=Localhost2/CN=localhost", "ca"),
		leaf("fake_localhost1", "/OU=Fake Localhost1/CN=localhost", "fake_ca"),
	} {
		require.NoError(t, s.Register(d))
	}

	assert.Equal(t, []string{"localhost1", "localhost2"}, s.Signees("ca"))
	assert.Equal(t, []string{"fake_localhost1"}, s.Signees("fake_ca"))
	assert.Empty(t, s.Signees("localhost1"))

	order, err := s.Order()
	require.NoError(t, err)
	require.Len(t, order, 5)
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["ca"], pos["localhost1"])
	assert.Less(t, pos["ca"], pos["localhost2"])
	assert.Less(t, pos["fake_ca"], pos["fake_localhost1"])

	names := make([]string, 0, 5)
	for _, d := range s.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ca", "fake_ca", "localhost1", "localhost2", "fake_localhost1"}, names)
}

func TestStore_SigneeRegisteredBeforeSigner(t *testing.T) {
	s := entity.NewStore(nil)
	require.NoError(t, s.Register(leaf("x", "/CN=x", "late_ca")))
	require.NoError(t, s.Register(root("late_ca", "/CN=Late CA")))
	assert.Equal(t, []string{"x"}, s.Signees("late_ca"))
}

func TestStore_RejectsCycle(t *testing.T) {
	s := entity.NewStore(nil)
	require.NoError(t, s.Register(leaf("a", "/CN=a", "b")))
	err := s.Register(leaf("b", "/CN=b", "a"))
	assert.ErrorIs(t, err, entity.ErrInvalid)

	_, err = s.Lookup("b")
	assert.ErrorIs(t, err, entity.ErrUnknownEntity)
}

func TestOpenStore_RoundTripsThroughBBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	repo, err := bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)

	s := entity.NewStore(repo)
	ca := root("ca", "/CN=EasySSL CA")
	l2 := entity.Descriptor{
		Name:     "localhost2",
		DN:       entity.MustParseDN("/OU=Localhost2/CN=localhost"),
		Signer:   "ca",
		Password: entity.NewPassword("localhost2-password"),
		Encoding: entity.PKCS8,
		AltNames: []string{"localhost"},
	}
	require.NoError(t, s.Register(ca))
	require.NoError(t, s.MarkIssued("ca", "", time.Now()))
	require.NoError(t, s.Register(l2))
	require.NoError(t, s.MarkIssued("localhost2", "0A1B", time.Now()))
	require.NoError(t, repo.Close())

	repo, err = bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	reopened, err := entity.OpenStore(repo)
	require.NoError(t, err)

	rec, ok := reopened.Record("localhost2")
	require.True(t, ok)
	assert.Equal(t, entity.StatusIssued, rec.Status)
	assert.Equal(t, "0A1B", rec.Serial)
	assert.Equal(t, entity.PKCS8, rec.Descriptor.Encoding)
	assert.Equal(t, []string{"localhost"}, rec.Descriptor.AltNames)
	assert.Equal(t, "/OU=Localhost2/CN=localhost", rec.Descriptor.DN.String())
	pw, err := rec.Descriptor.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "localhost2-password", pw)

	assert.Equal(t, []string{"localhost2"}, reopened.Signees("ca"))
	assert.ErrorIs(t, reopened.Register(ca), entity.ErrDuplicateEntity)

	// New registrations continue after the loaded sequence.
	require.NoError(t, reopened.Register(root("another_ca", "/CN=EasySSL Another CA")))
	names := []string{}
	for _, d := range reopened.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ca", "localhost2", "another_ca"}, names)
}
