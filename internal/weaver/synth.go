package weaver

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/funvibe/weave/pkg/weave"
)

// UnitKind selects the shape of the generated unit.
type UnitKind int

const (
	// KindInline wraps a statement fragment in a typed entry point, with one
	// package-level var per binding.
	KindInline UnitKind = iota

	// KindMethod splices complete top-level declarations verbatim; values
	// are passed as ordinary arguments instead of bindings.
	KindMethod
)

// Binding pairs a name with the value it will carry into the generated unit.
type Binding struct {
	Name  string
	Value any
	Type  TypeDescriptor
}

// GeneratedUnit is the transient product of synthesis: the full source text
// plus everything the rest of the pipeline needs to compile and load it.
// It is not retained once the weave request completes.
type GeneratedUnit struct {
	Ref      UnitRef
	Kind     UnitKind
	Source   string
	Bindings []Binding
	Result   string
	Extras   []string
	Fragment string
}

// runtimePkg is the import path generated units use to reach the binding
// store. The unit workspace carries a replace directive pointing this module
// at the host source tree, so host and unit share one store instance.
const runtimePkg = "github.com/funvibe/weave/pkg/weave"

// synthesize renders the complete source of one unit and, for inline units,
// stages every binding value in the store. Staging happens here — before
// compilation is even attempted — so the unit's initializers can steal the
// values whenever the artifact loads.
//
// synthesize itself never fails: a syntactically broken fragment, an unused
// extra import, a binding name that is not a legal identifier — all of these
// are deliberately left for the toolchain to report as diagnostics.
func synthesize(ref UnitRef, kind UnitKind, fragment string, bindings map[string]any, result string, extras []string) *GeneratedUnit {
	u := &GeneratedUnit{
		Ref:      ref,
		Kind:     kind,
		Result:   result,
		Extras:   extras,
		Fragment: fragment,
	}
	if u.Result == "" {
		u.Result = "any"
	}

	// Deterministic field order. Insertion order is meaningless for a map
	// and irrelevant to the unit's behavior; sorting keeps output stable.
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := bindings[name]
		u.Bindings = append(u.Bindings, Binding{Name: name, Value: v, Type: Infer(v)})
	}

	switch kind {
	case KindMethod:
		u.Source = renderMethodUnit(u)
	default:
		u.Source = renderInlineUnit(u)
		for _, b := range u.Bindings {
			weave.Stage(ref.Qualified(), b.Name, b.Value)
		}
	}
	return u
}

// fieldLine renders one staged binding as a package-level var initialized by
// stealing the value back out of the store, asserted to its inferred type.
func fieldLine(unit string, b Binding) string {
	call := fmt.Sprintf("weave.Steal(%q, %q)", unit, b.Name)
	if b.Type.Assert == "" {
		return fmt.Sprintf("var %s %s = %s", b.Name, b.Type.Decl, call)
	}
	return fmt.Sprintf("var %s %s = %s.(%s)", b.Name, b.Type.Decl, call, b.Type.Assert)
}

// unitImports collects the unit's import clauses, rendered and sorted: the
// runtime package when any binding is staged, every package an inferred
// type mentions, and the caller's extra imports verbatim. Deduplication is
// by path; two distinct packages that share a name would collide on their
// alias, which the toolchain reports like any other diagnostic.
func unitImports(u *GeneratedUnit) []string {
	seen := make(map[string]bool)
	var clauses []string
	add := func(imp Import) {
		if imp.Path == "" || seen[imp.Path] {
			return
		}
		seen[imp.Path] = true
		clauses = append(clauses, importClause(imp))
	}
	if u.Kind == KindInline && len(u.Bindings) > 0 {
		add(Import{Alias: "weave", Path: runtimePkg})
	}
	for _, b := range u.Bindings {
		for _, imp := range b.Type.Imports {
			add(imp)
		}
	}
	for _, p := range u.Extras {
		add(Import{Path: p})
	}
	sort.Strings(clauses)
	return clauses
}

// importClause renders one import line, spelling the alias out only when
// the package identifier differs from the path's last segment.
func importClause(imp Import) string {
	base := imp.Path[strings.LastIndexByte(imp.Path, '/')+1:]
	if imp.Alias == "" || imp.Alias == base {
		return fmt.Sprintf("%q", imp.Path)
	}
	return fmt.Sprintf("%s %q", imp.Alias, imp.Path)
}

type unitTemplateData struct {
	Simple   string
	Imports  []string
	Fields   []string
	Result   string
	Fragment string
}

func renderInlineUnit(u *GeneratedUnit) string {
	fields := make([]string, 0, len(u.Bindings))
	for _, b := range u.Bindings {
		fields = append(fields, fieldLine(u.Ref.Qualified(), b))
	}
	return renderTemplate(inlineUnitTemplate, unitTemplateData{
		Simple:   u.Ref.Simple,
		Imports:  unitImports(u),
		Fields:   fields,
		Result:   u.Result,
		Fragment: indentFragment(u.Fragment),
	})
}

func renderMethodUnit(u *GeneratedUnit) string {
	return renderTemplate(methodUnitTemplate, unitTemplateData{
		Simple:   u.Ref.Simple,
		Imports:  unitImports(u),
		Fragment: strings.TrimRight(u.Fragment, "\n"),
	})
}

func renderTemplate(tmpl *template.Template, data unitTemplateData) string {
	var buf strings.Builder
	// The templates are package constants parsed once; execution over plain
	// strings and slices cannot fail.
	if err := tmpl.Execute(&buf, data); err != nil {
		panic(fmt.Sprintf("weaver: unit template: %v", err))
	}
	return buf.String()
}

// indentFragment trims the trailing newline so the closing brace lands on
// its own line. The fragment text itself is spliced verbatim — re-indenting
// it would corrupt raw string literals — so generated bodies are only as
// pretty as the fragment that came in.
func indentFragment(fragment string) string {
	return strings.TrimRight(fragment, "\n")
}

var inlineUnitTemplate = template.Must(template.New("inline").Parse(`// Code generated by weave. DO NOT EDIT.
package main

{{if .Imports}}import (
{{- range .Imports}}
	{{.}}
{{- end}}
)

{{end -}}
{{range .Fields}}{{.}}
{{end}}
// Call is looked up by the host after this unit is loaded.
func Call() (any, error) {
	r, err := call{{.Simple}}()
	return r, err
}

func call{{.Simple}}() ({{.Result}}, error) {
{{.Fragment}}
}
`))

var methodUnitTemplate = template.Must(template.New("method").Parse(`// Code generated by weave. DO NOT EDIT.
package main

{{if .Imports}}import (
{{- range .Imports}}
	{{.}}
{{- end}}
)

{{end -}}
{{.Fragment}}
`))
