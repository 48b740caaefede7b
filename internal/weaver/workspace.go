package weaver

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/funvibe/weave/pkg/weave"
)

// Workspace owns the on-disk staging area for generated units. Everything
// lives under one fixed sub-path of the temp dir named after the generated
// namespace:
//
//	<root>/weavegen/            compiled artifacts (gen42.so, ...)
//	<root>/weavegen/src/<id>/   one module workspace per unit
//
// The artifact directory is deliberately shared and stable — purging stale
// same-name artifacts across requests only works against a fixed location —
// while each unit's source workspace gets a uuid suffix so two requests can
// never trip over each other's files.
type Workspace struct {
	root string

	// hostModPath / hostModDir identify this module so the generated
	// go.mod can require it and replace it with the local source tree.
	hostModPath string
	hostModDir  string

	// extraReplaces are additional "module => dir" mappings from config,
	// for fragments that import packages outside this module.
	extraReplaces map[string]string
}

// NewWorkspace creates a workspace rooted at dir, or under the OS temp dir
// when dir is empty.
func NewWorkspace(dir, hostModPath, hostModDir string) *Workspace {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "weave")
	}
	return &Workspace{
		root:          dir,
		hostModPath:   hostModPath,
		hostModDir:    hostModDir,
		extraReplaces: make(map[string]string),
	}
}

// AddReplace registers an extra module => directory mapping carried into
// every generated go.mod.
func (w *Workspace) AddReplace(module, dir string) {
	w.extraReplaces[module] = dir
}

// OutDir returns the shared artifact directory.
func (w *Workspace) OutDir() string {
	return filepath.Join(w.root, weave.Namespace)
}

// Stage writes the unit's source and a synthesized go.mod into a fresh
// module workspace and returns its path. The caller removes the workspace
// when the request finishes.
func (w *Workspace) Stage(u *GeneratedUnit) (string, error) {
	dir := filepath.Join(w.OutDir(), "src", u.Ref.Simple+"-"+uuid.NewString()[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating unit workspace: %w", err)
	}

	src := filepath.Join(dir, u.Ref.SourceFile())
	if err := os.WriteFile(src, []byte(u.Source), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", u.Ref.SourceFile(), err)
	}

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(w.goMod(u)), 0o644); err != nil {
		return "", fmt.Errorf("writing go.mod: %w", err)
	}
	return dir, nil
}

// goMod renders the unit's go.mod. The host module is required at a stub
// version and replaced with the local source tree; this is what lets the
// loaded artifact share the host's binding store instance rather than
// getting a private copy.
func (w *Workspace) goMod(u *GeneratedUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s/%s\n\n", weave.Namespace, u.Ref.Simple)
	fmt.Fprintf(&b, "go %s\n\n", goLanguageVersion())
	// No replace without a resolved host dir; the interpreted pipeline has
	// none and resolves the runtime package in-process instead.
	needHost := u.Kind == KindInline && len(u.Bindings) > 0 && w.hostModDir != ""
	if needHost {
		fmt.Fprintf(&b, "require %s v0.0.0\n\n", w.hostModPath)
		fmt.Fprintf(&b, "replace %s => %s\n", w.hostModPath, w.hostModDir)
	}
	for module, dir := range w.extraReplaces {
		fmt.Fprintf(&b, "\nrequire %s v0.0.0\n", module)
		fmt.Fprintf(&b, "replace %s => %s\n", module, dir)
	}
	return b.String()
}

// PurgeArtifacts deletes every compiled artifact in the output directory
// belonging to the given identity: the primary gen<K>.so plus any nested
// gen<K>$*.so left by an earlier compile under the same name. Removal
// failures are reported but a missing directory is not an error — nothing
// staged means nothing stale.
func (w *Workspace) PurgeArtifacts(ref UnitRef) error {
	entries, err := os.ReadDir(w.OutDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading artifact dir: %w", err)
	}
	stale := regexp.MustCompile("^" + regexp.QuoteMeta(ref.Simple) + `(\$.*)?\.so$`)
	for _, e := range entries {
		if e.IsDir() || !stale.MatchString(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(w.OutDir(), e.Name())); err != nil {
			return fmt.Errorf("removing stale artifact %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Cleanup removes one unit workspace. Best effort.
func (w *Workspace) Cleanup(unitDir string) {
	if unitDir != "" {
		os.RemoveAll(unitDir)
	}
}

// goLanguageVersion derives the "go X.Y" directive value from the running
// toolchain, falling back to a safe floor for devel builds.
func goLanguageVersion() string {
	v := strings.TrimPrefix(runtime.Version(), "go")
	if v == runtime.Version() || strings.ContainsAny(v, " -") {
		return "1.24"
	}
	return v
}
