package weaver

import "fmt"

// CompileError reports a failed compilation. It is the expected outcome for
// a broken fragment, not a pipeline fault: the host is meant to show the
// diagnostics to whoever wrote the fragment and carry on. Staged bindings
// for the unit have already been dropped by the time the caller sees this.
type CompileError struct {
	Unit        string
	Diagnostics string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("could not compile %s:\n%s", e.Unit, e.Diagnostics)
}

// LoadError is the one hard failure of the pipeline: the unit compiled but
// could not be loaded or instantiated. It terminates the weave request after
// best-effort delivery to the display sink.
type LoadError struct {
	Unit string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Unit, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
