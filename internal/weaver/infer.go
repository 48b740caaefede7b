package weaver

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TypeDescriptor describes how a binding is spelled in generated source: the
// type expression used to declare its var, and the type-assertion target
// applied to the value coming back out of the binding store. Assert is empty
// when the value's runtime type cannot be named from outside its package, in
// which case the var is declared as plain any and no assertion is emitted.
type TypeDescriptor struct {
	Decl    string
	Assert  string
	Imports []Import
}

// Import names one package a generated type expression depends on: the
// import path plus the identifier the expression uses to qualify it. The
// two are spelled separately because the identifier is the package name,
// not the path's last segment — gopkg.in/yaml.v3 declares package yaml,
// github.com/mattn/go-isatty declares package isatty.
type Import struct {
	Alias string
	Path  string
}

// interfaceLadder is the ordered set of well-known interfaces tried when a
// value's concrete type is not nameable. The first interface the type
// satisfies becomes both the declared and the asserted type — the narrowest
// expressible supertype, even though it widens the true runtime type.
var interfaceLadder = []struct {
	expr    string
	imports []Import
	typ     reflect.Type
}{
	{"error", nil, reflect.TypeOf((*error)(nil)).Elem()},
	{"fmt.Stringer", []Import{{Alias: "fmt", Path: "fmt"}}, reflect.TypeOf((*fmt.Stringer)(nil)).Elem()},
	{"io.ReadWriter", []Import{{Alias: "io", Path: "io"}}, reflect.TypeOf((*io.ReadWriter)(nil)).Elem()},
	{"io.Reader", []Import{{Alias: "io", Path: "io"}}, reflect.TypeOf((*io.Reader)(nil)).Elem()},
	{"io.Writer", []Import{{Alias: "io", Path: "io"}}, reflect.TypeOf((*io.Writer)(nil)).Elem()},
	{"io.Closer", []Import{{Alias: "io", Path: "io"}}, reflect.TypeOf((*io.Closer)(nil)).Elem()},
}

// Infer computes the narrowest nameable static type for a runtime value.
// It never fails: any value can at worst be declared as any.
func Infer(v any) TypeDescriptor {
	if v == nil {
		return TypeDescriptor{Decl: "any"}
	}
	t := reflect.TypeOf(v)

	if expr, imports, ok := typeExpr(t); ok {
		return TypeDescriptor{Decl: expr, Assert: expr, Imports: imports}
	}

	for _, iface := range interfaceLadder {
		if t.Implements(iface.typ) {
			return TypeDescriptor{Decl: iface.expr, Assert: iface.expr, Imports: iface.imports}
		}
	}

	return TypeDescriptor{Decl: "any"}
}

// typeExpr renders t as a source-level type expression, together with the
// imports the expression needs. ok is false when the type (or any type it
// is composed of) cannot legally be spelled in a foreign package.
func typeExpr(t reflect.Type) (expr string, imports []Import, ok bool) {
	switch {
	case t.Name() != "" && t.PkgPath() == "":
		// Predeclared types: int, float64, string, bool, error and friends.
		return t.Name(), nil, true

	case t.Name() != "":
		if !nameable(t) {
			return "", nil, false
		}
		alias := pkgIdent(t)
		return alias + "." + t.Name(), []Import{{Alias: alias, Path: t.PkgPath()}}, true
	}

	switch t.Kind() {
	case reflect.Slice:
		elem, imp, ok := typeExpr(t.Elem())
		if !ok {
			return "", nil, false
		}
		return "[]" + elem, imp, true
	case reflect.Array:
		elem, imp, ok := typeExpr(t.Elem())
		if !ok {
			return "", nil, false
		}
		return fmt.Sprintf("[%d]%s", t.Len(), elem), imp, true
	case reflect.Ptr:
		elem, imp, ok := typeExpr(t.Elem())
		if !ok {
			return "", nil, false
		}
		return "*" + elem, imp, true
	case reflect.Map:
		key, kimp, ok := typeExpr(t.Key())
		if !ok {
			return "", nil, false
		}
		elem, eimp, ok := typeExpr(t.Elem())
		if !ok {
			return "", nil, false
		}
		return "map[" + key + "]" + elem, append(kimp, eimp...), true
	}

	// Anonymous structs, channels, funcs, unnamed interfaces: a declaration
	// could be spelled out structurally, but an assertion to it would almost
	// never be what the caller meant. Treat as not expressible.
	return "", nil, false
}

// nameable reports whether a named type can be referenced from a generated
// unit: the name must be exported and its package importable from an
// unrelated module.
func nameable(t reflect.Type) bool {
	r, _ := utf8.DecodeRuneInString(t.Name())
	if !unicode.IsUpper(r) {
		return false
	}
	path := t.PkgPath()
	if path == "main" || path == "" {
		return false
	}
	if path == "internal" || strings.HasPrefix(path, "internal/") ||
		strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal") {
		return false
	}
	return true
}

// reservedAliases are identifiers generated units already use; a package
// whose name collides gets a prefixed alias instead. Go keywords cannot be
// package names, so only these need guarding.
var reservedAliases = map[string]bool{
	"main":  true,
	"weave": true,
}

// pkgIdent returns the identifier generated source uses to qualify t's
// package. The real package name, recovered from reflect's type string, is
// preferred over the import path's last segment — the two differ for paths
// like gopkg.in/yaml.v3 (package yaml) or github.com/mattn/go-isatty
// (package isatty), and the segment form is not even an identifier there.
func pkgIdent(t reflect.Type) string {
	name := t.String()
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	} else {
		name = pkgBase(t.PkgPath())
	}
	name = sanitizeAlias(name)
	if name == "" {
		name = "pkg"
	}
	if reservedAliases[name] {
		name = "pkg" + strings.ToUpper(name[:1]) + name[1:]
	}
	return name
}

// pkgBase guesses the package identifier from an import path alone, for the
// rare type whose reflected string carries no qualifier. Versioned tails
// like /v9 resolve to the preceding segment, matching how the Go toolchain
// names such packages.
func pkgBase(path string) string {
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	if len(parts) > 1 && len(last) > 1 && last[0] == 'v' {
		allDigits := true
		for _, c := range last[1:] {
			if c < '0' || c > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			last = parts[len(parts)-2]
		}
	}
	return last
}

// sanitizeAlias strips every rune that cannot appear in a Go identifier.
func sanitizeAlias(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}
