package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// Store is the read-only metadata collaborator contract. A false second
// return and a non-nil error are treated identically by the resolver: the
// build has no bundle.
type Store interface {
	// Get fetches the bundle for one build, reporting whether it exists.
	Get(ctx context.Context, containerID, buildType, buildName string) (Bundle, bool, error)

	// Count returns the number of bundles currently known.
	Count(ctx context.Context) int
}

// FSStore reads bundle JSON documents from a filesystem laid out as
// <containerID>/<buildType>/<buildName>.json.
type FSStore struct {
	fsys fs.FS
}

// NewFSStore creates a filesystem-backed metadata store.
func NewFSStore(fsys fs.FS) *FSStore {
	return &FSStore{fsys: fsys}
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, containerID, buildType, buildName string) (Bundle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	name, ok := bundlePath(containerID, buildType, buildName)
	if !ok {
		return nil, false, ErrInvalidBundleKey
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, false, ErrMalformedBundle
	}
	return b, true, nil
}

// Count implements Store by walking the tree for bundle documents.
func (s *FSStore) Count(ctx context.Context) int {
	count := 0
	_ = fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are simply not counted
		}
		if !d.IsDir() && strings.HasSuffix(p, ".json") {
			count++
		}
		return nil
	})
	return count
}

// bundlePath builds the relative document path, rejecting traversal attempts.
func bundlePath(containerID, buildType, buildName string) (string, bool) {
	for _, part := range []string{containerID, buildType, buildName} {
		if part == "" || strings.ContainsAny(part, "/\\") || part == "." || part == ".." {
			return "", false
		}
	}
	return path.Join(containerID, buildType, buildName+".json"), true
}

// MapStore is an in-memory metadata store used in tests and seeding.
type MapStore struct {
	mu      sync.RWMutex
	bundles map[string]Bundle
}

// NewMapStore creates an empty in-memory metadata store.
func NewMapStore() *MapStore {
	return &MapStore{bundles: make(map[string]Bundle)}
}

// Put registers a bundle for one build.
func (s *MapStore) Put(containerID, buildType, buildName string, b Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[containerID+"/"+buildType+"/"+buildName] = b
}

// Get implements Store.
func (s *MapStore) Get(ctx context.Context, containerID, buildType, buildName string) (Bundle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[containerID+"/"+buildType+"/"+buildName]
	return b, ok, nil
}

// Count implements Store.
func (s *MapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bundles)
}
