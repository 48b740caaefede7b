package weaver

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/weave/pkg/weave"
)

func TestSynthesize_InlineFields(t *testing.T) {
	ref := fixedUnitRef("gensynth1")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return n * n, nil", map[string]any{
		"n": 5,
		"s": "hi",
	}, "int", nil)

	if !strings.Contains(u.Source, "package main") {
		t.Fatalf("source missing package clause:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, `var n int = weave.Steal("weavegen.gensynth1", "n").(int)`) {
		t.Errorf("source missing typed field for n:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, `var s string = weave.Steal("weavegen.gensynth1", "s").(string)`) {
		t.Errorf("source missing typed field for s:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, `"github.com/funvibe/weave/pkg/weave"`) {
		t.Errorf("source missing runtime import:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, "func callgensynth1() (int, error) {\nreturn n * n, nil\n}") {
		t.Errorf("fragment not spliced verbatim into typed body:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, "func Call() (any, error)") {
		t.Errorf("source missing entry point:\n%s", u.Source)
	}
}

func TestSynthesize_StagesBindings(t *testing.T) {
	ref := fixedUnitRef("gensynth2")
	defer weave.Drop(ref.Qualified())

	synthesize(ref, KindInline, "return n, nil", map[string]any{"n": 7}, "", nil)

	if got := weave.StagedCount(ref.Qualified()); got != 1 {
		t.Fatalf("StagedCount = %d, want 1", got)
	}
	if v := weave.Steal(ref.Qualified(), "n"); v != 7 {
		t.Errorf("staged value = %v, want 7", v)
	}
}

func TestSynthesize_DeterministicFieldOrder(t *testing.T) {
	ref := fixedUnitRef("gensynth3")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return a + z, nil", map[string]any{
		"z": 1, "a": 2, "m": 3,
	}, "int", nil)

	if len(u.Bindings) != 3 {
		t.Fatalf("bindings = %d, want 3", len(u.Bindings))
	}
	for i, want := range []string{"a", "m", "z"} {
		if u.Bindings[i].Name != want {
			t.Errorf("bindings[%d] = %q, want %q", i, u.Bindings[i].Name, want)
		}
	}
}

func TestSynthesize_EmptyNameSkipped(t *testing.T) {
	ref := fixedUnitRef("gensynth4")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return 0, nil", map[string]any{"": 9}, "int", nil)

	if len(u.Bindings) != 0 {
		t.Errorf("bindings = %d, want 0", len(u.Bindings))
	}
	if got := weave.StagedCount(ref.Qualified()); got != 0 {
		t.Errorf("StagedCount = %d, want 0", got)
	}
}

func TestSynthesize_DefaultResultIsAny(t *testing.T) {
	ref := fixedUnitRef("gensynth5")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return nil, nil", nil, "", nil)

	if u.Result != "any" {
		t.Errorf("Result = %q, want any", u.Result)
	}
	if !strings.Contains(u.Source, "func callgensynth5() (any, error)") {
		t.Errorf("default result not rendered:\n%s", u.Source)
	}
}

func TestSynthesize_ImportsSortedDeduped(t *testing.T) {
	ref := fixedUnitRef("gensynth6")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return d, nil", map[string]any{
		"d": time.Second,
		"u": time.Minute,
	}, "time.Duration", []string{"strings", "time"})

	got := unitImports(u)
	want := []string{`"github.com/funvibe/weave/pkg/weave"`, `"strings"`, `"time"`}
	if len(got) != len(want) {
		t.Fatalf("imports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("imports = %v, want %v", got, want)
		}
	}
}

func TestSynthesize_AliasedImportForRenamedPackage(t *testing.T) {
	ref := fixedUnitRef("gensynth10")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return n.Value, nil", map[string]any{
		"n": &yaml.Node{},
	}, "string", nil)

	if !strings.Contains(u.Source, `var n *yaml.Node = weave.Steal("weavegen.gensynth10", "n").(*yaml.Node)`) {
		t.Errorf("field not qualified by the package name:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, "\tyaml \"gopkg.in/yaml.v3\"\n") {
		t.Errorf("import not aliased to the package name:\n%s", u.Source)
	}
	if strings.Contains(u.Source, "yaml.v3.") {
		t.Errorf("path segment leaked into a type expression:\n%s", u.Source)
	}
}

func TestImportClause(t *testing.T) {
	tests := []struct {
		name string
		imp  Import
		want string
	}{
		{"plain", Import{Alias: "time", Path: "time"}, `"time"`},
		{"nested plain", Import{Alias: "url", Path: "net/url"}, `"net/url"`},
		{"renamed", Import{Alias: "yaml", Path: "gopkg.in/yaml.v3"}, `yaml "gopkg.in/yaml.v3"`},
		{"hyphenated", Import{Alias: "isatty", Path: "github.com/mattn/go-isatty"}, `isatty "github.com/mattn/go-isatty"`},
		{"extra without alias", Import{Path: "strings"}, `"strings"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := importClause(tt.imp); got != tt.want {
				t.Errorf("importClause = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesize_UnnameableBindingHasNoAssertion(t *testing.T) {
	ref := fixedUnitRef("gensynth7")
	defer weave.Drop(ref.Qualified())

	u := synthesize(ref, KindInline, "return v, nil", map[string]any{
		"v": hiddenValue{n: 1},
	}, "", nil)

	if !strings.Contains(u.Source, `var v any = weave.Steal("weavegen.gensynth7", "v")`) {
		t.Errorf("unnameable binding not declared as plain any:\n%s", u.Source)
	}
	if strings.Contains(u.Source, `"v").(`) {
		t.Errorf("unexpected assertion on unnameable binding:\n%s", u.Source)
	}
}

func TestSynthesize_MethodVerbatim(t *testing.T) {
	decls := "func Greet() (any, error) {\n\treturn \"hello\", nil\n}\n"
	u := synthesize(fixedUnitRef("gensynth8"), KindMethod, decls, nil, "", nil)

	if !strings.Contains(u.Source, "package main") {
		t.Fatalf("source missing package clause:\n%s", u.Source)
	}
	if !strings.Contains(u.Source, strings.TrimRight(decls, "\n")) {
		t.Errorf("declarations not spliced verbatim:\n%s", u.Source)
	}
	if strings.Contains(u.Source, "func Call()") {
		t.Errorf("method unit must not get a synthetic entry point:\n%s", u.Source)
	}
	if strings.Contains(u.Source, runtimePkg) {
		t.Errorf("method unit must not import the runtime package:\n%s", u.Source)
	}
}

func TestSynthesize_RawStringFragmentSurvives(t *testing.T) {
	ref := fixedUnitRef("gensynth9")
	defer weave.Drop(ref.Qualified())

	fragment := "s := `line one\nline two`\nreturn s, nil"
	u := synthesize(ref, KindInline, fragment, nil, "string", nil)

	if !strings.Contains(u.Source, fragment) {
		t.Errorf("raw string fragment was altered:\n%s", u.Source)
	}
}
