// Package revocation revokes issued leaves and publishes CRLs for the
// certificate authorities that signed them.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmcleod/sslfixture/engine"
	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/index"
)

// ErrNotIssued is returned when a revocation target has no certificate yet.
var ErrNotIssued = errors.New("entity has not been issued")

// Manager mutates a signer's bookkeeping index through the engine.
type Manager struct {
	store  *entity.Store
	engine engine.Engine
	root   string
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New returns a Manager for artifacts under root.
func New(store *entity.Store, eng engine.Engine, root string, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		engine: eng,
		root:   root,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Revoke records targetName as revoked by signerName. The target must
// exist (*entity.UnknownEntityError) and must have been signed by
// signerName (*entity.NotSignedByError). Revoking an already revoked
// target is a no-op, so each target is listed at most once.
func (m *Manager) Revoke(ctx context.Context, signerName, targetName string) error {
	target, err := m.store.Lookup(targetName)
	if err != nil {
		return err
	}
	if target.Signer != signerName {
		return &entity.NotSignedByError{Entity: targetName, Signer: signerName, ActualSigner: target.Signer}
	}
	signer, err := m.issuedSigner(signerName, targetName)
	if err != nil {
		return err
	}
	rec, _ := m.store.Record(targetName)
	if rec.Status != entity.StatusIssued {
		return fmt.Errorf("revoking %q: %w", targetName, ErrNotIssued)
	}

	log := m.logger.With(slog.String("signer", signerName), slog.String("entity", targetName))
	sp := signer.Paths()
	entries, err := index.Read(m.abs(sp.Index))
	if err != nil {
		return fmt.Errorf("reading %s: %w", sp.Index, err)
	}
	if e, ok := index.Lookup(entries, rec.Serial); ok && e.Status == index.Revoked {
		log.Info("already revoked", slog.String("serial", e.Serial))
		return nil
	}

	if err := m.engine.Revoke(ctx, engine.RevokeRequest{
		Target:            target.Paths().Cert,
		SignerConfig:      sp.Config,
		SignerCert:        sp.Cert,
		SignerKey:         sp.Key,
		SignerKeyPassword: signer.Password,
	}); err != nil {
		return err
	}
	log.Info("revoked", slog.String("serial", rec.Serial))
	return nil
}

// IssueCRL writes signerName's CRL, replacing any earlier one.
func (m *Manager) IssueCRL(ctx context.Context, signerName string) error {
	signer, err := m.issuedSigner(signerName, "")
	if err != nil {
		return err
	}
	sp := signer.Paths()
	if err := m.engine.GenerateCRL(ctx, engine.CRLRequest{
		SignerConfig:      sp.Config,
		SignerCert:        sp.Cert,
		SignerKey:         sp.Key,
		SignerKeyPassword: signer.Password,
		Out:               sp.CRL,
	}); err != nil {
		return err
	}
	m.logger.Info("crl issued", slog.String("signer", signerName), slog.String("path", sp.CRL))
	return nil
}

// Revoked returns the revoked entries of signerName's index.
func (m *Manager) Revoked(signerName string) ([]index.Entry, error) {
	signer, err := m.issuedSigner(signerName, "")
	if err != nil {
		return nil, err
	}
	entries, err := index.Read(m.abs(signer.Paths().Index))
	if err != nil {
		return nil, err
	}
	return index.RevokedEntries(entries), nil
}

// issuedSigner resolves name as an issued certificate authority.
func (m *Manager) issuedSigner(name, target string) (entity.Descriptor, error) {
	rec, ok := m.store.Record(name)
	if !ok || rec.Status != entity.StatusIssued {
		return entity.Descriptor{}, &entity.UnknownSignerError{Signer: name, Entity: target}
	}
	if !rec.Descriptor.IsRoot() {
		return entity.Descriptor{}, fmt.Errorf("%q is not a certificate authority: %w", name, entity.ErrInvalid)
	}
	return rec.Descriptor, nil
}

func (m *Manager) abs(rel string) string {
	return filepath.Join(m.root, filepath.FromSlash(rel))
}
