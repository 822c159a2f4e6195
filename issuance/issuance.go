// Package issuance turns entity descriptors into on-disk PKI artifacts.
//
// For every descriptor the pipeline validates it, resolves its signer,
// writes its OpenSSL config, generates its key and then either self-signs
// (roots) or requests and obtains a CA signature (leaves). A signer must
// have completed issuance before anything it signs; that ordering is checked
// before any file is created.
package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmcleod/sslfixture/engine"
	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/index"
	"github.com/jmcleod/sslfixture/internal/util"
	"github.com/jmcleod/sslfixture/internal/uuid"
	"github.com/jmcleod/sslfixture/render"
)

// FirstCRLNumber seeds a root's crlnumber file. Its presence makes the
// engine publish numbered v2 CRLs.
const FirstCRLNumber = "01"

// Pipeline issues entities into an output root.
type Pipeline struct {
	store  *entity.Store
	engine engine.Engine
	root   string

	logger *slog.Logger
	clock  func() time.Time
	days   int
	runID  string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the time source used for bookkeeping timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithValidityDays overrides the certificate validity period.
func WithValidityDays(days int) Option {
	return func(p *Pipeline) {
		if days > 0 {
			p.days = days
		}
	}
}

// WithRunID sets the identifier attached to every log line. A random one is
// generated otherwise.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// New returns a pipeline writing under root. The engine must resolve
// relative paths against the same root.
func New(store *entity.Store, eng engine.Engine, root string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		engine: eng,
		root:   root,
		logger: slog.New(slog.DiscardHandler),
		clock:  time.Now,
		days:   engine.DefaultValidityDays,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runID == "" {
		p.runID = uuid.New()
	}
	p.logger = p.logger.With(slog.String("run_id", p.runID))
	return p
}

// RunID identifies this pipeline's log output.
func (p *Pipeline) RunID() string { return p.runID }

// Run issues ds in order and stops at the first failure. Entities issued
// before the failure keep their artifacts.
func (p *Pipeline) Run(ctx context.Context, ds []entity.Descriptor) error {
	for _, d := range ds {
		if err := p.Issue(ctx, d); err != nil {
			return fmt.Errorf("issuing %q: %w", d.Name, err)
		}
	}
	p.logger.Info("generation complete", slog.Int("entities", len(ds)))
	return nil
}

// Issue generates every artifact of d. It returns *entity.DuplicateEntityError
// if d was already registered and *entity.UnknownSignerError if d's signer
// has not been issued; in both cases nothing is written. d is registered in
// the store only once its artifacts exist, so an attempt that fails in the
// engine can be repeated.
func (p *Pipeline) Issue(ctx context.Context, d entity.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := p.store.Record(d.Name); exists {
		return &entity.DuplicateEntityError{Name: d.Name}
	}
	var signer entity.Descriptor
	if !d.IsRoot() {
		var err error
		if signer, err = p.store.ResolveSigner(d); err != nil {
			return err
		}
		if !signer.IsRoot() {
			return fmt.Errorf("signer %q of %q is not a certificate authority: %w", signer.Name, d.Name, entity.ErrInvalid)
		}
	}

	log := p.logger.With(slog.String("entity", d.Name))
	log.Info("generating", slog.String("dn", d.DN.String()), slog.String("signer", d.Signer))

	paths := d.Paths()
	if err := os.MkdirAll(p.abs(paths.Dir), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", paths.Dir, err)
	}

	step(log, "config")
	if err := os.WriteFile(p.abs(paths.Config), render.Config(d), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	step(log, "key")
	if err := p.engine.GenerateKey(ctx, engine.KeyRequest{
		Out:      paths.Key,
		Curve:    engine.Curve,
		Encoding: d.Encoding,
		Password: d.Password,
	}); err != nil {
		return err
	}

	var serial string
	var err error
	if d.IsRoot() {
		err = p.issueRoot(ctx, log, d)
	} else {
		serial, err = p.issueLeaf(ctx, log, d, signer)
	}
	if err != nil {
		return err
	}

	// Registration waits for the artifacts so a failed attempt can be retried.
	if err := p.store.Register(d); err != nil {
		return err
	}
	if err := p.store.MarkIssued(d.Name, serial, p.clock()); err != nil {
		return err
	}
	log.Info("issued", slog.String("serial", serial))
	return nil
}

func (p *Pipeline) issueRoot(ctx context.Context, log *slog.Logger, d entity.Descriptor) error {
	paths := d.Paths()

	step(log, "self-sign")
	if err := p.engine.SelfSign(ctx, engine.SelfSignRequest{
		Key:         paths.Key,
		KeyPassword: d.Password,
		Config:      paths.Config,
		Days:        p.days,
		Digest:      engine.Digest,
		Out:         paths.Cert,
	}); err != nil {
		return err
	}

	step(log, "index")
	if err := util.CreateEmpty(p.abs(paths.Index)); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	if err := os.WriteFile(p.abs(paths.CRLNumber), []byte(FirstCRLNumber+"\n"), 0o644); err != nil {
		return fmt.Errorf("creating crlnumber: %w", err)
	}
	return nil
}

func (p *Pipeline) issueLeaf(ctx context.Context, log *slog.Logger, d, signer entity.Descriptor) (string, error) {
	paths, sp := d.Paths(), signer.Paths()

	step(log, "csr")
	if err := p.engine.CreateCSR(ctx, engine.CSRRequest{
		Key:         paths.Key,
		KeyPassword: d.Password,
		Config:      paths.Config,
		Out:         paths.CSR,
	}); err != nil {
		return "", err
	}

	step(log, "sign")
	serial, err := p.engine.SignCSR(ctx, engine.SignRequest{
		CSR:               paths.CSR,
		SignerCert:        sp.Cert,
		SignerKey:         sp.Key,
		SignerKeyPassword: signer.Password,
		SerialFile:        sp.Serial,
		CreateSerial:      true,
		Days:              p.days,
		Digest:            engine.Digest,
		ExtFile:           paths.Config,
		Extensions:        render.ExtensionSection,
		Out:               paths.Cert,
	})
	if err != nil {
		return "", err
	}
	serial = index.CanonicalSerial(serial)

	step(log, "bookkeeping")
	if err := index.Append(p.abs(sp.Index), index.Entry{
		Status:  index.Valid,
		Expiry:  p.clock().AddDate(0, 0, p.days),
		Serial:  serial,
		Subject: d.DN.Oneline(),
	}); err != nil {
		return "", fmt.Errorf("recording %s in %s: %w", serial, sp.Index, err)
	}

	step(log, "chain")
	if err := util.ConcatFiles(p.abs(paths.Chain), p.abs(paths.Cert), p.abs(sp.Cert)); err != nil {
		return "", fmt.Errorf("writing chain: %w", err)
	}
	return serial, nil
}

func (p *Pipeline) abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func step(log *slog.Logger, name string) {
	log.Debug("step", slog.String("step", name))
}
