package weave

import (
	"fmt"
	"os"
	"sync"
)

// bindings holds the staged values for every unit that has been synthesized
// but not yet loaded, keyed by unit name and then binding name. Values are
// handed across the compilation boundary by name only — the generated source
// mentions the name and the inferred type, never the value itself — and are
// retrieved exactly once by the unit's own var initializers.
//
// One coarse mutex guards the whole map of maps. Contention here is map
// lookups only, orders of magnitude below the cost of a compile, so finer
// locking buys nothing.
var (
	bindingsMu sync.Mutex
	bindings   = make(map[string]map[string]any)
)

// Stage records a value under (unit, binding) for later retrieval by the
// generated unit. An empty binding name is ignored, which lets callers pass
// deliberately unnamed placeholders. Staging the same pair twice keeps the
// latest value.
//
// Stage is called by the engine during synthesis; it is exported only so the
// engine (and tests) can reach it from outside this package.
func Stage(unit, binding string, value any) {
	if binding == "" {
		return
	}
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	m, ok := bindings[unit]
	if !ok {
		m = make(map[string]any)
		bindings[unit] = m
	}
	m[binding] = value
}

// Steal removes and returns the value staged under (unit, binding). It is
// called from generated var initializers, so it must never panic: a missing
// record — unit unknown, or the pair already stolen — logs one diagnostic
// line and returns nil. A nil here typically surfaces moments later as a
// failed type assertion during unit load, which is the visible error the
// caller actually wants.
//
// Each (unit, binding) pair is stolen at most once per process. When a unit's
// last binding is stolen its sub-map is dropped, so abandoned units do not
// accumulate.
func Steal(unit, binding string) any {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	m, ok := bindings[unit]
	if !ok {
		fmt.Fprintf(os.Stderr, "weave: no binding %q for unit %q\n", binding, unit)
		return nil
	}
	v, ok := m[binding]
	if !ok {
		fmt.Fprintf(os.Stderr, "weave: no binding %q for unit %q\n", binding, unit)
		return nil
	}
	delete(m, binding)
	if len(m) == 0 {
		delete(bindings, unit)
	}
	return v
}

// Drop discards every record still staged for the given unit. The engine
// calls it when compilation fails: those records would otherwise never be
// stolen and would pile up across failed requests.
func Drop(unit string) {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	delete(bindings, unit)
}

// StagedCount reports how many bindings are currently staged for the unit.
// Intended for tests and diagnostics.
func StagedCount(unit string) int {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	return len(bindings[unit])
}
