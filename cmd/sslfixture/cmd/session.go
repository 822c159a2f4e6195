package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/sslfixture/engine"
	"github.com/jmcleod/sslfixture/entity"
	"github.com/jmcleod/sslfixture/manifest"
	"github.com/jmcleod/sslfixture/storage"
	bboltstorage "github.com/jmcleod/sslfixture/storage/bbolt"
	"github.com/jmcleod/sslfixture/storage/postgres"
)

// stateFile holds the entity store of the last generate --state run.
const stateFile = ".sslfixture.db"

var stateDSN string

var errNoState = errors.New("no saved state")

// newEngine builds the engine for a session; tests replace it.
var newEngine = func(root string, logger *slog.Logger) engine.Engine {
	return engine.NewOpenSSL(root, engine.WithBinary(opensslPath), engine.WithLogger(logger))
}

// session is the store and engine shared by one command invocation.
type session struct {
	root   string
	store  *entity.Store
	engine engine.Engine
	close  func() error
}

func (s *session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func statePath() string {
	return filepath.Join(outDir, stateFile)
}

// stateRepo is a storage backend the session owns and must close.
type stateRepo interface {
	storage.Repository
	Close() error
}

// openState opens the saved state: PostgreSQL when --state-dsn is set,
// otherwise the BBolt file under the output root. A fresh state discards
// whatever an earlier run saved.
func openState(ctx context.Context, fresh bool) (stateRepo, error) {
	if stateDSN != "" {
		repo, err := postgres.NewRepositoryFromDSN(ctx, stateDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open state: %w", err)
		}
		if fresh {
			if err := repo.Reset(entity.Namespace); err != nil {
				repo.Close()
				return nil, fmt.Errorf("failed to reset state: %w", err)
			}
		}
		return repo, nil
	}

	path := statePath()
	if fresh {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to reset state: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w at %s: run generate --state first", errNoState, path)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(path, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	return repo, nil
}

// newSession prepares an empty store for a generate run. With persist set,
// the store is backed by fresh saved state.
func newSession(ctx context.Context, persist bool) (*session, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	s := &session{root: outDir, engine: newEngine(outDir, slog.Default())}
	if !persist {
		s.store = entity.NewStore(nil)
		return s, nil
	}
	repo, err := openState(ctx, true)
	if err != nil {
		return nil, err
	}
	s.store = entity.NewStore(repo)
	s.close = repo.Close
	return s, nil
}

// resumeSession reopens the state a previous generate --state left behind.
func resumeSession(ctx context.Context) (*session, error) {
	repo, err := openState(ctx, false)
	if err != nil {
		return nil, err
	}
	store, err := entity.OpenStore(repo)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &session{
		root:   outDir,
		store:  store,
		engine: newEngine(outDir, slog.Default()),
		close:  repo.Close,
	}, nil
}

// loadManifest reads path, or returns the built-in fixture set when path
// is empty.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return manifest.Default(), nil
	}
	return manifest.FromFile(path)
}

// descriptors returns the entities of the saved state when there is one,
// otherwise those of the manifest at path.
func descriptors(ctx context.Context, path string) ([]entity.Descriptor, error) {
	if path == "" {
		s, err := resumeSession(ctx)
		if err == nil {
			defer s.Close()
			return s.store.Descriptors(), nil
		}
		if !errors.Is(err, errNoState) {
			return nil, err
		}
	}
	m, err := loadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Entities, nil
}
