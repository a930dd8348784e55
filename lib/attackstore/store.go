package attackstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ogwatch/lib/scrapers/game"

	toml "github.com/pelletier/go-toml/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("ogwatch.lib.attackstore")

const (
	storeFileMode   = 0o600
	tempFilePattern = ".attacks-*.toml.tmp"
)

// user email -> attack id -> attack record. Grows monotonically, ids
// are unique per occurrence so stale entries never collide.
type fileSchema = map[string]map[string]game.Attack

// Store persists which attacks have already been reported per user.
// Writes are serialized per path, so concurrent user passes sharing a
// store cannot lose updates.
type Store struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if lock, ok := pathLockMap[path]; ok {
		return lock
	}
	lock := &sync.RWMutex{}
	pathLockMap[path] = lock
	return lock
}

func NewStore(path string) (Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Store{}, fmt.Errorf("resolve store path: %w", err)
	}
	return Store{path: abs, mu: lockForPath(abs)}, nil
}

// FilterNew returns the subset of attacks not yet recorded for the
// user, in input order, and records them. Calling it again with the
// same ids returns nothing: an attack is reported at most once per
// user, across restarts.
func (s Store) FilterNew(ctx context.Context, email string, attacks []game.Attack) ([]game.Attack, error) {
	ctx, span := tracer.Start(ctx, "FilterNew")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.read()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read attack store")
		return nil, err
	}

	seen := store[email]
	if seen == nil {
		seen = map[string]game.Attack{}
		store[email] = seen
	}

	var fresh []game.Attack
	for _, attack := range attacks {
		if _, ok := seen[attack.Id]; ok {
			continue
		}
		seen[attack.Id] = attack
		fresh = append(fresh, attack)
	}

	if len(fresh) == 0 {
		return nil, nil
	}

	// one write per batch, through a temp file so a crash mid-write
	// cannot truncate the store
	if err := s.write(store); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist attack store")
		return nil, err
	}
	return fresh, nil
}

func (s Store) read() (fileSchema, error) {
	contents, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fileSchema{}, nil
	}
	if err != nil {
		return nil, err
	}

	store := fileSchema{}
	if err := toml.Unmarshal(contents, &store); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return store, nil
}

func (s Store) write(store fileSchema) error {
	encoded, err := toml.Marshal(store)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(encoded)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, storeFileMode)
	}
	if err == nil {
		err = os.Rename(tmpName, s.path)
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
