package weaver

import (
	"fmt"
	"sync/atomic"

	"github.com/funvibe/weave/pkg/weave"
)

// unitCounter is the process-wide identity allocator. It only ever goes up:
// a failed weave still consumes its number, which is what makes "allocate an
// id" and "the id is free" a single atomic step under concurrency.
var unitCounter atomic.Int64

// nextUnitID returns a fresh, strictly increasing unit identity.
func nextUnitID() int64 {
	return unitCounter.Add(1)
}

// UnitRef names one generated unit.
type UnitRef struct {
	// ID is the allocator value for this unit. Zero for units with an
	// externally supplied fixed name.
	ID int64

	// Simple is the unqualified unit name, e.g. "gen42".
	Simple string
}

// newUnitRef allocates an identity and derives the unit naming from it.
func newUnitRef() UnitRef {
	id := nextUnitID()
	return UnitRef{ID: id, Simple: fmt.Sprintf("gen%d", id)}
}

// fixedUnitRef builds a UnitRef for an externally chosen simple name, used
// when a caller reuses a stable name across method weaves. Such names can
// collide on disk across runs, which is why stale artifacts are purged
// before every compile.
func fixedUnitRef(simple string) UnitRef {
	return UnitRef{Simple: simple}
}

// Qualified returns the namespaced unit name, e.g. "weavegen.gen42". This is
// the binding store key and the name the unit knows itself by.
func (u UnitRef) Qualified() string {
	return weave.Namespace + "." + u.Simple
}

// SourceFile returns the staged source file name for the unit.
func (u UnitRef) SourceFile() string { return u.Simple + ".go" }

// ArtifactFile returns the compiled artifact file name for the unit.
func (u UnitRef) ArtifactFile() string { return u.Simple + ".so" }
