package weaver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/weave/pkg/weave"
)

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	return NewWorkspace(t.TempDir(), "github.com/funvibe/weave", "/src/weave")
}

func TestWorkspace_StageWritesSourceAndGoMod(t *testing.T) {
	w := testWorkspace(t)
	ref := fixedUnitRef("genws1")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return n, nil", map[string]any{"n": 1}, "int", nil)
	dir, err := w.Stage(u)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Cleanup(dir)

	src, err := os.ReadFile(filepath.Join(dir, "genws1.go"))
	if err != nil {
		t.Fatalf("reading staged source: %v", err)
	}
	if string(src) != u.Source {
		t.Error("staged source differs from synthesized source")
	}

	mod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		t.Fatalf("reading staged go.mod: %v", err)
	}
	gomod := string(mod)
	if !strings.Contains(gomod, "module weavegen/genws1") {
		t.Errorf("go.mod missing module clause:\n%s", gomod)
	}
	if !strings.Contains(gomod, "require github.com/funvibe/weave v0.0.0") {
		t.Errorf("go.mod missing host require:\n%s", gomod)
	}
	if !strings.Contains(gomod, "replace github.com/funvibe/weave => /src/weave") {
		t.Errorf("go.mod missing host replace:\n%s", gomod)
	}
}

func TestWorkspace_GoModSkipsHostWithoutBindings(t *testing.T) {
	w := testWorkspace(t)

	u := synthesize(fixedUnitRef("genws2"), KindMethod, "func F() {}\n", nil, "", nil)
	gomod := w.goMod(u)

	if strings.Contains(gomod, "require github.com/funvibe/weave") {
		t.Errorf("binding-free unit should not require the host:\n%s", gomod)
	}
}

func TestWorkspace_GoModExtraReplaces(t *testing.T) {
	w := testWorkspace(t)
	w.AddReplace("example.com/num", "/src/num")

	u := synthesize(fixedUnitRef("genws3"), KindMethod, "func F() {}\n", nil, "", nil)
	gomod := w.goMod(u)

	if !strings.Contains(gomod, "require example.com/num v0.0.0") {
		t.Errorf("go.mod missing extra require:\n%s", gomod)
	}
	if !strings.Contains(gomod, "replace example.com/num => /src/num") {
		t.Errorf("go.mod missing extra replace:\n%s", gomod)
	}
}

func TestWorkspace_StageDirsAreUnique(t *testing.T) {
	w := testWorkspace(t)
	u := synthesize(fixedUnitRef("genws4"), KindMethod, "func F() {}\n", nil, "", nil)

	a, err := w.Stage(u)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Cleanup(a)
	b, err := w.Stage(u)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Cleanup(b)

	if a == b {
		t.Errorf("two stagings of the same unit share a directory: %s", a)
	}
}

func TestWorkspace_PurgeArtifacts(t *testing.T) {
	w := testWorkspace(t)
	if err := os.MkdirAll(w.OutDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	stale := []string{"genws5.so", "genws5$inner.so", "genws5$inner$deep.so"}
	keep := []string{"genws50.so", "genws6.so"}
	for _, name := range append(append([]string{}, stale...), keep...) {
		if err := os.WriteFile(filepath.Join(w.OutDir(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.PurgeArtifacts(fixedUnitRef("genws5")); err != nil {
		t.Fatalf("PurgeArtifacts: %v", err)
	}

	for _, name := range stale {
		if _, err := os.Stat(filepath.Join(w.OutDir(), name)); !os.IsNotExist(err) {
			t.Errorf("stale artifact %s survived purge", name)
		}
	}
	for _, name := range keep {
		if _, err := os.Stat(filepath.Join(w.OutDir(), name)); err != nil {
			t.Errorf("unrelated artifact %s was purged", name)
		}
	}
}

func TestWorkspace_PurgeMissingDirIsNoError(t *testing.T) {
	w := testWorkspace(t)
	if err := w.PurgeArtifacts(fixedUnitRef("genws7")); err != nil {
		t.Errorf("PurgeArtifacts on missing dir: %v", err)
	}
}

func TestWorkspace_CleanupRemovesDir(t *testing.T) {
	w := testWorkspace(t)
	u := synthesize(fixedUnitRef("genws8"), KindMethod, "func F() {}\n", nil, "", nil)

	dir, err := w.Stage(u)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	w.Cleanup(dir)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("unit dir %s survived cleanup", dir)
	}
}
