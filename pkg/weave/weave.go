// Package weave is the runtime contract between the weave engine and the
// units it generates. Generated units are separate Go modules, so everything
// they reference at compile time must live under pkg/ — most importantly
// Steal, which their package-level var initializers call to pick up bindings.
//
// The engine itself lives in internal/weaver; hosts normally go through
// weaver.Engine rather than this package.
package weave

// Namespace is the logical namespace of every generated unit. Unit names are
// Namespace + "." + the simple name (e.g. "weavegen.gen42"), and staging
// directories and artifacts live under a sub-path of the same name.
const Namespace = "weavegen"

// Callable is the handle returned for an inline weave. Call runs the
// original fragment with its bindings materialized; it is safe to invoke any
// number of times — bindings are consumed once, when the unit is loaded, not
// per call.
type Callable interface {
	Call() (any, error)
}

// Module is the handle returned for a method weave. Lookup resolves a
// top-level declaration of the generated unit by name; the result must be
// type-asserted by the caller (typically to a func type).
type Module interface {
	Lookup(name string) (any, error)
}

// CallableFunc adapts a plain function to the Callable interface.
type CallableFunc func() (any, error)

func (f CallableFunc) Call() (any, error) { return f() }
