package weaver

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
)

// LoadContext scopes the resources of one load attempt. Every weave request
// gets a fresh context and releases it before the request returns, success
// or failure, so per-request loading state never leaks into the next one.
//
// Releasing follows classloader-close semantics: code already loaded and
// symbols already resolved stay usable — the handle outlives the request —
// but the per-request resources (scratch files, registered closers) do not.
// Go cannot unload a plugin's code in any case.
type LoadContext struct {
	released bool
	closers  []func() error
}

// OnRelease registers cleanup to run when the context is released.
func (lc *LoadContext) OnRelease(f func() error) {
	lc.closers = append(lc.closers, f)
}

// Release runs all registered cleanup, once. Errors from individual closers
// are collected but do not stop the rest.
func (lc *LoadContext) Release() error {
	if lc.released {
		return nil
	}
	lc.released = true
	var first error
	for _, f := range lc.closers {
		if err := f(); err != nil && first == nil {
			first = err
		}
	}
	lc.closers = nil
	return first
}

// LoadedArtifact is an instantiated unit: a symbol resolver over its
// primary artifact, plus the context that produced it.
type LoadedArtifact struct {
	Lookup  func(name string) (any, error)
	Context *LoadContext
}

// Loader turns a compiled (or at least staged) unit into a LoadedArtifact
// inside the given context. unitDir is the staged source workspace, outDir
// the shared artifact directory.
type Loader interface {
	Load(lc *LoadContext, ref UnitRef, unitDir, outDir string) (*LoadedArtifact, error)
}

// symbolTable abstracts an opened artifact; the indirection exists so loader
// behavior (discovery order, error paths) is testable without invoking the
// real plugin machinery.
type symbolTable interface {
	Lookup(name string) (any, error)
}

type pluginTable struct{ p *plugin.Plugin }

func (t pluginTable) Lookup(name string) (any, error) {
	sym, err := t.p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func openPlugin(path string) (symbolTable, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return pluginTable{p: p}, nil
}

// PluginLoader loads compiled plugin artifacts. Alongside the primary
// artifact it opens every nested artifact — files named after the primary
// with a "$" separator (gen42$helper.so) — before resolving symbols, since
// resolving the primary unit may in turn require types those carry.
type PluginLoader struct {
	open func(path string) (symbolTable, error)
}

// NewPluginLoader returns a loader backed by the runtime plugin machinery.
func NewPluginLoader() *PluginLoader {
	return &PluginLoader{open: openPlugin}
}

func (l *PluginLoader) Load(lc *LoadContext, ref UnitRef, unitDir, outDir string) (*LoadedArtifact, error) {
	for _, nested := range nestedArtifacts(outDir, ref, ".so") {
		if _, err := l.open(nested); err != nil {
			return nil, fmt.Errorf("loading nested artifact %s: %w", filepath.Base(nested), err)
		}
	}

	primary, err := l.open(filepath.Join(outDir, ref.ArtifactFile()))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ref.ArtifactFile(), err)
	}

	return &LoadedArtifact{
		Context: lc,
		Lookup:  primary.Lookup,
	}, nil
}

// nestedArtifacts lists files in dir named "<simple>$*<ext>", sorted for
// deterministic load order. A missing directory yields nothing.
func nestedArtifacts(dir string, ref UnitRef, ext string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	prefix := ref.Simple + "$"
	var found []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			found = append(found, filepath.Join(dir, name))
		}
	}
	sort.Strings(found)
	return found
}
