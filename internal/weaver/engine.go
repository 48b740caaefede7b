// Package weaver implements the dynamic code-weaving engine: it turns a Go
// source fragment plus named runtime values into a compiled, loaded,
// invocable unit.
//
// The pipeline for one weave request is strictly sequential and runs in the
// calling goroutine: allocate a unit identity, infer a static type per
// binding, stage the binding values, synthesize the unit source, stage it in
// a module workspace, purge stale artifacts with the same identity, invoke
// the toolchain once, load the artifact in a request-scoped context, resolve
// the entry symbol, release the context. Concurrency exists only across
// requests; the identity allocator and the binding store are the two shared
// points and each is independently safe.
package weaver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/funvibe/weave/pkg/weave"
)

// Engine weaves fragments into invocable units. The zero value is not
// usable; construct with New.
type Engine struct {
	ws         *Workspace
	tc         Toolchain
	loader     Loader
	sink       Sink
	log        *zap.Logger
	ledger     *Ledger
	cache      *ModCache
	searchPath string
	showSource bool
	stagingDir string
	interp     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithToolchain replaces the compilation invoker.
func WithToolchain(tc Toolchain) Option { return func(e *Engine) { e.tc = tc } }

// WithLoader replaces the artifact loader.
func WithLoader(l Loader) Option { return func(e *Engine) { e.loader = l } }

// WithInterpreted selects the in-process interpreted pipeline regardless of
// platform plugin support.
func WithInterpreted() Option { return func(e *Engine) { e.interp = true } }

// WithCompiled forces the compiled plugin pipeline even on platforms where
// plugin support is not detected. Compile or load failures then surface
// through the usual error paths instead of a silent interpreter fallback.
func WithCompiled() Option { return func(e *Engine) { e.interp = false } }

// WithSink sets the display sink for generated source and load errors.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithLogger sets the engine logger. Nop by default.
func WithLogger(log *zap.Logger) Option { return func(e *Engine) { e.log = log } }

// WithStagingDir overrides the workspace root (default: os.TempDir()/weave).
func WithStagingDir(dir string) Option { return func(e *Engine) { e.stagingDir = dir } }

// WithSearchPath prepends a directory to the toolchain's module search path.
func WithSearchPath(path string) Option { return func(e *Engine) { e.searchPath = path } }

// WithLedger attaches a request ledger.
func WithLedger(l *Ledger) Option { return func(e *Engine) { e.ledger = l } }

// ShowSourceByDefault makes every request display its generated source.
func ShowSourceByDefault() Option { return func(e *Engine) { e.showSource = true } }

// New builds an Engine. With no options it picks the compiled (plugin)
// pipeline where the platform supports it and the interpreted pipeline
// everywhere else.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		sink:   NopSink{},
		log:    zap.NewNop(),
		interp: !PluginsSupported(),
	}
	for _, opt := range opts {
		opt(e)
	}

	hostPath, hostDir := hostModulePath, ""
	if e.tc == nil || e.loader == nil {
		if e.interp {
			if e.tc == nil {
				e.tc = InterpToolchain{}
			}
			if e.loader == nil {
				e.loader = InterpLoader{}
			}
		} else {
			// The compiled pipeline needs the host source tree for the
			// generated replace directive.
			hm, err := hostModule()
			if err != nil {
				return nil, err
			}
			hostPath, hostDir = hm.Path, hm.Dir
			if e.tc == nil {
				e.tc = &GoToolchain{}
			}
			if e.loader == nil {
				e.loader = NewPluginLoader()
			}
		}
	}

	e.ws = NewWorkspace(e.stagingDir, hostPath, hostDir)
	if !e.interp {
		e.cache = NewModCache(filepath.Join(e.ws.root, "sum-cache"))
	}
	return e, nil
}

// Workspace exposes the engine's staging workspace, mainly so embedders can
// add replace directives for extra modules their fragments import.
func (e *Engine) Workspace() *Workspace { return e.ws }

// InlineOption configures one inline weave request.
type InlineOption func(*inlineReq)

type inlineReq struct {
	result  string
	imports []string
	show    bool
}

// WithResult declares the fragment's result type (default any). The
// fragment must return a value of this type plus an error.
func WithResult(typ string) InlineOption { return func(r *inlineReq) { r.result = typ } }

// WithImports adds import paths to the generated unit, verbatim. An import
// the fragment does not use becomes a compile diagnostic, as it would in
// hand-written Go.
func WithImports(paths ...string) InlineOption {
	return func(r *inlineReq) { r.imports = append(r.imports, paths...) }
}

// ShowSource displays the generated source through the engine's sink.
func ShowSource() InlineOption { return func(r *inlineReq) { r.show = true } }

// Inline weaves a statement fragment with named bindings into an invocable
// handle. The fragment becomes the body of a function returning the declared
// result type and an error; each binding becomes a typed package-level var
// of the generated unit, carrying the staged value.
//
// A broken fragment returns a *CompileError carrying the full toolchain
// diagnostics; the handle is nil and the process is otherwise unaffected.
// The returned handle may be invoked any number of times.
func (e *Engine) Inline(fragment string, bindings map[string]any, opts ...InlineOption) (weave.Callable, error) {
	var req inlineReq
	for _, opt := range opts {
		opt(&req)
	}

	ref := newUnitRef()
	u := synthesize(ref, KindInline, fragment, bindings, req.result, req.imports)
	e.log.Debug("synthesized inline unit",
		zap.String("unit", ref.Qualified()),
		zap.Int("bindings", len(u.Bindings)))

	art, err := e.produce(u, req.show)
	if err != nil {
		return nil, err
	}

	sym, err := art.Lookup("Call")
	if err != nil {
		return nil, e.loadFailure(u, fmt.Errorf("resolving entry point: %w", err))
	}
	fn, ok := sym.(func() (any, error))
	if !ok {
		return nil, e.loadFailure(u, fmt.Errorf("entry point has type %T, want func() (any, error)", sym))
	}
	e.record(u, "ok", "")
	return weave.CallableFunc(fn), nil
}

// MethodOption configures one method weave request.
type MethodOption func(*methodReq)

type methodReq struct {
	imports []string
	show    bool
	name    string
}

// MethodImports adds import paths to the generated unit.
func MethodImports(paths ...string) MethodOption {
	return func(r *methodReq) { r.imports = append(r.imports, paths...) }
}

// MethodShowSource displays the generated source through the engine's sink.
func MethodShowSource() MethodOption { return func(r *methodReq) { r.show = true } }

// MethodUnitName fixes the unit's simple name instead of allocating one.
// Fixed names can collide with earlier runs on disk, which is exactly what
// the pre-compile artifact purge exists for.
func MethodUnitName(name string) MethodOption { return func(r *methodReq) { r.name = name } }

// Method weaves one or more complete top-level declarations into a loaded
// unit and returns a handle resolving them by name. No bindings are staged;
// values travel as ordinary arguments to the woven functions.
func (e *Engine) Method(decls string, opts ...MethodOption) (weave.Module, error) {
	var req methodReq
	for _, opt := range opts {
		opt(&req)
	}

	ref := newUnitRef()
	if req.name != "" {
		ref = fixedUnitRef(req.name)
	}
	u := synthesize(ref, KindMethod, decls, nil, "", req.imports)
	e.log.Debug("synthesized method unit", zap.String("unit", ref.Qualified()))

	art, err := e.produce(u, req.show)
	if err != nil {
		return nil, err
	}
	e.record(u, "ok", "")
	return moduleHandle{lookup: art.Lookup}, nil
}

type moduleHandle struct {
	lookup func(name string) (any, error)
}

func (m moduleHandle) Lookup(name string) (any, error) { return m.lookup(name) }

// produce runs the staged unit through purge, compile and load. It owns the
// cleanup obligations: the unit workspace is removed, the loading context is
// released on every path, and staged bindings are dropped when compilation
// fails so they cannot accumulate across failed requests.
func (e *Engine) produce(u *GeneratedUnit, show bool) (*LoadedArtifact, error) {
	if show || e.showSource {
		if err := e.sink.ShowSource(u.Ref.SourceFile(), u.Source); err != nil {
			e.log.Warn("source display failed", zap.Error(err))
		}
	}

	unitDir, err := e.ws.Stage(u)
	if err != nil {
		weave.Drop(u.Ref.Qualified())
		return nil, fmt.Errorf("staging %s: %w", u.Ref.Qualified(), err)
	}
	defer e.ws.Cleanup(unitDir)

	if err := e.ws.PurgeArtifacts(u.Ref); err != nil {
		weave.Drop(u.Ref.Qualified())
		return nil, fmt.Errorf("purging stale artifacts for %s: %w", u.Ref.Qualified(), err)
	}

	if e.cache != nil {
		if err := e.cache.Seed(e.ws, unitDir); err != nil {
			e.log.Warn("go.sum cache seed failed", zap.Error(err))
		}
	}

	res := e.tc.Compile(unitDir, e.searchPath, e.ws.OutDir())
	if !res.Success {
		weave.Drop(u.Ref.Qualified())
		e.record(u, "compile-error", res.Diagnostics)
		e.log.Info("compilation failed", zap.String("unit", u.Ref.Qualified()))
		return nil, &CompileError{Unit: u.Ref.Qualified(), Diagnostics: res.Diagnostics}
	}

	if e.cache != nil {
		if err := e.cache.Store(e.ws, unitDir); err != nil {
			e.log.Warn("go.sum cache store failed", zap.Error(err))
		}
	}

	lc := &LoadContext{}
	defer func() {
		if rerr := lc.Release(); rerr != nil {
			e.log.Warn("releasing loading context", zap.Error(rerr))
		}
	}()

	art, err := e.loader.Load(lc, u.Ref, unitDir, e.ws.OutDir())
	if err != nil {
		return nil, e.loadFailure(u, err)
	}
	return art, nil
}

// loadFailure wraps err as the request's terminal load error, after trying
// to hand it to the display sink. Sink failures are logged and swallowed —
// they must not mask the original error.
func (e *Engine) loadFailure(u *GeneratedUnit, err error) error {
	if serr := e.sink.ShowError(u.Ref.Qualified(), err); serr != nil {
		e.log.Warn("error display failed", zap.Error(serr))
	}
	e.record(u, "load-error", err.Error())
	return &LoadError{Unit: u.Ref.Qualified(), Err: err}
}

// record appends the request outcome to the ledger, if one is attached.
// Ledger problems are logged, never propagated.
func (e *Engine) record(u *GeneratedUnit, outcome, detail string) {
	if e.ledger == nil {
		return
	}
	kind := "inline"
	if u.Kind == KindMethod {
		kind = "method"
	}
	sum := sha256.Sum256([]byte(u.Fragment))
	err := e.ledger.Record(Entry{
		Unit:         u.Ref.Qualified(),
		Kind:         kind,
		FragmentHash: hex.EncodeToString(sum[:8]),
		Outcome:      outcome,
		Detail:       detail,
	})
	if err != nil {
		e.log.Warn("ledger write failed", zap.Error(err))
	}
}
