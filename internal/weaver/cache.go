package weaver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ModCache reuses resolved go.sum files across unit compilations. The cache
// key is a hash of the generated go.mod shape (host module, replaces, go
// version), so as long as the dependency set is unchanged every staged unit
// starts with an already-resolved sum and `go mod tidy` does no network work.
type ModCache struct {
	// root is the cache directory, by default <workspace root>/sum-cache.
	root string
}

// NewModCache creates a cache under the given directory.
func NewModCache(root string) *ModCache {
	return &ModCache{root: root}
}

// CacheDir returns the path to the cache directory.
func (c *ModCache) CacheDir() string {
	return c.root
}

// Seed copies a cached go.sum into the unit workspace, if one matches the
// workspace's dependency shape. A miss is not an error.
func (c *ModCache) Seed(w *Workspace, unitDir string) error {
	cached := filepath.Join(c.CacheDir(), "sum-"+c.key(w))
	data, err := os.ReadFile(cached)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cached go.sum: %w", err)
	}
	if err := os.WriteFile(filepath.Join(unitDir, "go.sum"), data, 0o644); err != nil {
		return fmt.Errorf("seeding go.sum: %w", err)
	}
	return nil
}

// Store saves the unit workspace's go.sum for reuse by later requests with
// the same dependency shape. Units with no go.sum store nothing.
func (c *ModCache) Store(w *Workspace, unitDir string) error {
	data, err := os.ReadFile(filepath.Join(unitDir, "go.sum"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading go.sum: %w", err)
	}
	if err := os.MkdirAll(c.CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	cached := filepath.Join(c.CacheDir(), "sum-"+c.key(w))
	if err := os.WriteFile(cached, data, 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Clean removes all cached sums.
func (c *ModCache) Clean() error {
	return os.RemoveAll(c.CacheDir())
}

// key generates a deterministic cache key from the workspace's dependency
// shape. Replace targets are included because a moved source tree changes
// what tidy resolves.
func (c *ModCache) key(w *Workspace) string {
	h := sha256.New()
	h.Write([]byte(w.hostModPath))
	h.Write([]byte{0})
	h.Write([]byte(w.hostModDir))
	h.Write([]byte{0})
	h.Write([]byte(goLanguageVersion()))
	h.Write([]byte{0})

	mods := make([]string, 0, len(w.extraReplaces))
	for mod := range w.extraReplaces {
		mods = append(mods, mod)
	}
	sort.Strings(mods)
	for _, mod := range mods {
		h.Write([]byte(mod + "=>" + w.extraReplaces[mod]))
		h.Write([]byte{0})
	}

	h.Write([]byte(sumCacheVersion))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// sumCacheVersion is bumped when the generated go.mod format changes, so
// stale sums are re-resolved instead of reused.
const sumCacheVersion = "v1"
