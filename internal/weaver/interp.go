package weaver

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/funvibe/weave/pkg/weave"
)

// The interpreted pipeline runs generated units in-process with yaegi
// instead of compiling plugins. It honors the exact same contracts — the
// unit's var initializers still steal bindings from the store, symbols are
// still resolved by name, the loading context is still request-scoped — but
// it needs no cgo, no writable temp, and works on every platform. It is
// also what the test suite runs against.

// weaveExports exposes the runtime contract package to interpreted units,
// so their `import "github.com/funvibe/weave/pkg/weave"` resolves to the
// host's binding store rather than a private copy.
func weaveExports() interp.Exports {
	return interp.Exports{
		runtimePkg + "/weave": {
			"Namespace": reflect.ValueOf(weave.Namespace),
			"Steal":     reflect.ValueOf(weave.Steal),
			"Stage":     reflect.ValueOf(weave.Stage),
		},
	}
}

// newUnitInterp builds a fresh interpreter wired with the stdlib and the
// runtime contract. One interpreter never outlives one unit.
func newUnitInterp() (*interp.Interpreter, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading interpreter stdlib: %w", err)
	}
	if err := i.Use(weaveExports()); err != nil {
		return nil, fmt.Errorf("loading runtime symbols: %w", err)
	}
	return i, nil
}

// InterpToolchain is the compilation invoker of the interpreted pipeline:
// it parses and type-checks the staged unit without running it, reporting
// problems as diagnostics in the usual Result shape. No artifact is
// produced — the interpreted loader works from the staged source.
type InterpToolchain struct{}

func (InterpToolchain) Compile(unitDir, searchPath, outDir string) Result {
	sources, err := unitSources(unitDir)
	if err != nil {
		return Result{Diagnostics: err.Error()}
	}
	for _, path := range sources {
		src, err := os.ReadFile(path)
		if err != nil {
			return Result{Diagnostics: fmt.Sprintf("reading %s: %v", filepath.Base(path), err)}
		}
		i, err := newUnitInterp()
		if err != nil {
			return Result{Diagnostics: err.Error()}
		}
		if _, err := i.Compile(string(src)); err != nil {
			return Result{Diagnostics: fmt.Sprintf("%s: %v", filepath.Base(path), err)}
		}
	}
	return Result{Success: true}
}

// InterpLoader evaluates the staged unit in a fresh interpreter. Evaluating
// the source runs the package-level initializers, which is the moment the
// bindings are stolen — once per load, exactly like a plugin's init.
type InterpLoader struct{}

func (InterpLoader) Load(lc *LoadContext, ref UnitRef, unitDir, outDir string) (*LoadedArtifact, error) {
	i, err := newUnitInterp()
	if err != nil {
		return nil, err
	}

	sources, err := unitSources(unitDir)
	if err != nil {
		return nil, err
	}
	// Nested sources (gen42$*.go) evaluate before the primary unit so the
	// primary can resolve the declarations they carry.
	for _, path := range sources {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		if _, err := i.Eval(string(src)); err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", filepath.Base(path), err)
		}
	}

	return &LoadedArtifact{
		Context: lc,
		Lookup: func(name string) (any, error) {
			v, err := i.Eval("main." + name)
			if err != nil {
				return nil, fmt.Errorf("unit %s: symbol %s: %w", ref.Qualified(), name, err)
			}
			return v.Interface(), nil
		},
	}, nil
}

// unitSources returns the unit's staged source files with nested sources
// first and the primary file last.
func unitSources(unitDir string) ([]string, error) {
	entries, err := os.ReadDir(unitDir)
	if err != nil {
		return nil, fmt.Errorf("reading unit workspace: %w", err)
	}
	var nested, primary []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".go" {
			continue
		}
		if strings.IndexByte(name, '$') >= 0 {
			nested = append(nested, filepath.Join(unitDir, name))
		} else {
			primary = append(primary, filepath.Join(unitDir, name))
		}
	}
	if len(primary) == 0 {
		return nil, fmt.Errorf("no staged source in %s", unitDir)
	}
	return append(nested, primary...), nil
}
