package host

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/experimental/logging"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

var contextType = reflect.TypeFor[context.Context]()

// Runtime compiles guests and owns the import module they link against.
// Imports are registered first; the first Load freezes the registry and
// instantiates the import module.
type Runtime struct {
	runtime wazero.Runtime
	log     *zap.Logger
	imports map[string]*importBinding
	symbols map[string]*importBinding
	hostMod api.Module
	cfg     Config

	mu           sync.Mutex
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

type importBinding struct {
	fn *schema.Function
	h  *schema.Handler
}

// New creates a runtime with default configuration.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a runtime with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	r := &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		log:     c.logger(),
		imports: make(map[string]*importBinding),
		cfg:     c,
	}
	if c.EnableWASI {
		if err := r.initWASI(ctx); err != nil {
			_ = r.runtime.Close(ctx)
			return nil, errors.Load("instantiate WASI", err)
		}
	}
	return r, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// initWASI instantiates wasi_snapshot_preview1 once per runtime.
func (r *Runtime) initWASI(ctx context.Context) error {
	if r.wasiInitDone.Load() {
		return nil
	}

	r.wasiInitMu.Lock()
	defer r.wasiInitMu.Unlock()

	if r.wasiInitDone.Load() {
		return nil
	}
	if r.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}
	r.wasiInitDone.Store(true)
	return nil
}

// RegisterImport binds handler to the host function fn. The handler may
// take a context.Context first, then one argument per parameter of fn. It
// returns nothing, an error, the result, or the result and an error.
//
// Handlers of async functions run on their own goroutine; their context is
// cancelled when the instance is closed.
//
// Must be called BEFORE the first Load.
func (r *Runtime) RegisterImport(fn *schema.Function, handler any) error {
	ns := r.cfg.namespace()
	if fn == nil {
		return errors.InvalidInput(errors.PhaseHost, "nil function")
	}
	h, err := schema.BindHandler(fn, handler, contextType)
	if err != nil {
		return errors.Registration(errors.PhaseHost, ns, fn.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostMod != nil {
		return errors.Registration(errors.PhaseHost, ns, fn.Name,
			fmt.Errorf("imports are frozen after the first Load"))
	}
	if _, dup := r.imports[fn.Name]; dup {
		return errors.Registration(errors.PhaseHost, ns, fn.Name, fmt.Errorf("already registered"))
	}
	r.imports[fn.Name] = &importBinding{fn: fn, h: h}
	debugf("registered import %s as %s#%s", fn, ns, fn.Symbol())
	return nil
}

// RegisterImports binds one handler per import of p.
func (r *Runtime) RegisterImports(p *schema.Protocol, handlers map[string]any) error {
	for name := range handlers {
		if _, ok := p.Import(name); !ok {
			return errors.NotFound(errors.PhaseHost, "import", name)
		}
	}
	for _, name := range p.ImportNames() {
		handler, ok := handlers[name]
		if !ok {
			return errors.NotFound(errors.PhaseHost, "handler", name)
		}
		fn, _ := p.Import(name)
		if err := r.RegisterImport(fn, handler); err != nil {
			return err
		}
	}
	return nil
}

// Load compiles a guest and checks that every import it declares can be
// satisfied. p describes the functions the guest exports and imports.
func (r *Runtime) Load(ctx context.Context, wasm []byte, p *schema.Protocol) (*Module, error) {
	if p == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil protocol")
	}

	cctx := ctx
	if r.cfg.TraceWriter != nil {
		cctx = experimental.WithFunctionListenerFactory(ctx, logging.NewLoggingListenerFactory(traceWriter(r.cfg.TraceWriter)))
	}

	if err := r.ensureHostModule(cctx); err != nil {
		return nil, errors.Load("instantiate import module", err)
	}

	compiled, err := r.runtime.CompileModule(cctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	if err := r.checkImports(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	return newModule(r, compiled, p), nil
}

// stringWriter adds WriteString to writers that lack it.
type stringWriter struct {
	io.Writer
}

func (w stringWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// traceWriter adapts w to the writer the wazero logging listener requires.
func traceWriter(w io.Writer) logging.Writer {
	if lw, ok := w.(logging.Writer); ok {
		return lw
	}
	return stringWriter{w}
}

// ensureHostModule builds the import module from the registry.
func (r *Runtime) ensureHostModule(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostMod != nil {
		return nil
	}

	names := make([]string, 0, len(r.imports))
	for name := range r.imports {
		names = append(names, name)
	}
	sort.Strings(names)

	symbols := make(map[string]*importBinding, len(names))
	b := r.runtime.NewHostModuleBuilder(r.cfg.namespace())
	for _, name := range names {
		ib := r.imports[name]
		b.NewFunctionBuilder().
			WithGoModuleFunction(r.importFunc(ib), valueTypes(ib.fn.WasmParams()), valueTypes(ib.fn.WasmResults())).
			WithName(name).
			Export(ib.fn.Symbol())
		symbols[ib.fn.Symbol()] = ib
	}
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(r.hostResolve), []api.ValueType{api.ValueTypeI64, api.ValueTypeI64}, nil).
		Export(abi.HostResolveName)

	mod, err := b.Instantiate(ctx)
	if err != nil {
		return err
	}
	r.hostMod = mod
	r.symbols = symbols
	return nil
}

func (r *Runtime) checkImports(compiled wazero.CompiledModule) error {
	ns := r.cfg.namespace()
	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		switch module {
		case ns:
			if _, ok := r.symbols[name]; !ok && name != abi.HostResolveName {
				missing = append(missing, module+"#"+name)
			}
		case wasi_snapshot_preview1.ModuleName:
			if !r.cfg.EnableWASI {
				missing = append(missing, module+"#"+name)
			}
		default:
			if r.runtime.Module(module) == nil {
				missing = append(missing, module+"#"+name)
			}
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

func valueTypes(ts []abi.WasmType) []api.ValueType {
	if len(ts) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}
