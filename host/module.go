package host

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/fp-bridge/abi"
	"github.com/wippyai/fp-bridge/errors"
	"github.com/wippyai/fp-bridge/schema"
)

// Module is a compiled guest. It can be instantiated any number of times.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	protocol *schema.Protocol
}

func newModule(r *Runtime, compiled wazero.CompiledModule, p *schema.Protocol) *Module {
	return &Module{runtime: r, compiled: compiled, protocol: p}
}

// Protocol returns the protocol the module was loaded with.
func (m *Module) Protocol() *schema.Protocol {
	return m.protocol
}

// Export is a generated function found in the guest binary.
type Export struct {
	// Function is the protocol declaration, nil when the protocol does not
	// know the symbol.
	Function *schema.Function
	Name     string
	Symbol   string
	Params   []api.ValueType
	Results  []api.ValueType
}

// Exports lists the __fp_gen_ functions of the binary, sorted by name.
func (m *Module) Exports() []Export {
	defs := m.compiled.ExportedFunctions()
	exports := make([]Export, 0, len(defs))
	for symbol, def := range defs {
		name, ok := abi.FunctionName(symbol)
		if !ok {
			continue
		}
		e := Export{
			Name:    name,
			Symbol:  symbol,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		}
		if fn := m.lookup(name); fn != nil {
			e.Function = fn
			e.Name = fn.Name
		}
		exports = append(exports, e)
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })
	return exports
}

// lookup finds the protocol export whose symbol maps to name. Symbols lose
// the distinction between '-' and '_'.
func (m *Module) lookup(name string) *schema.Function {
	if fn, ok := m.protocol.Export(name); ok {
		return fn
	}
	symbol := abi.ExportName(name)
	for _, fn := range m.protocol.Exports {
		if fn.Symbol() == symbol {
			return fn
		}
	}
	return nil
}

// Close releases the compiled code. Instances must be closed first.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate creates an instance, runs the configured start functions
// and resolves the allocator and resolve exports.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	inst := newInstance(m)

	cfg := wazero.NewModuleConfig().WithName("")
	if m.runtime.cfg.StartFunctions != nil {
		cfg = cfg.WithStartFunctions(m.runtime.cfg.StartFunctions...)
	}
	if w := m.runtime.cfg.Stdout; w != nil {
		cfg = cfg.WithStdout(w)
	}
	if w := m.runtime.cfg.Stderr; w != nil {
		cfg = cfg.WithStderr(w)
	}

	mod, err := m.runtime.runtime.InstantiateModule(inst.callContext(ctx), m.compiled, cfg)
	if err != nil {
		inst.cancel()
		return nil, errors.Instantiation(err)
	}
	inst.attach(mod)

	if err := inst.checkABI(m.needsGuestResolve()); err != nil {
		inst.cancel()
		_ = mod.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	return inst, nil
}

// needsGuestResolve reports whether the host may have to resolve a value
// the guest awaits.
func (m *Module) needsGuestResolve() bool {
	for _, fn := range m.protocol.Imports {
		if fn.Async {
			return true
		}
	}
	return false
}
