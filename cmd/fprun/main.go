package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/fp-bridge/codec"
	"github.com/wippyai/fp-bridge/host"
	"github.com/wippyai/fp-bridge/schema"
)

type options struct {
	witFile     string
	wasmFile    string
	funcName    string
	args        []string
	list        bool
	interactive bool
	trace       bool
	debug       bool
	wasi        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.witFile, "wit", "", "Path to the protocol description")
	flag.BoolVar(&opts.list, "list", false, "List exported functions and exit")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.trace, "trace", false, "Trace guest and host calls to stderr")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.wasi, "wasi", false, "Provide wasi_snapshot_preview1 to the guest")
	flag.Parse()

	if opts.witFile == "" || flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: fprun -wit <protocol.wit> <module.wasm> [func] [args...]")
		fmt.Fprintln(os.Stderr, "       fprun -wit <protocol.wit> -list <module.wasm>")
		fmt.Fprintln(os.Stderr, "       fprun -wit <protocol.wit> -i <module.wasm>  (interactive mode)")
		os.Exit(1)
	}
	opts.wasmFile = flag.Arg(0)
	if flag.NArg() > 1 {
		opts.funcName = flag.Arg(1)
		opts.args = flag.Args()[2:]
	}

	log := zap.NewNop()
	if opts.debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
		host.SetLogger(l)
	}
	defer log.Sync() //nolint:errcheck

	if opts.interactive || (opts.funcName == "" && !opts.list && term.IsTerminal(int(os.Stdout.Fd()))) {
		if err := runInteractive(opts, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is a loaded guest with stubbed host imports.
type session struct {
	rt  *host.Runtime
	mod *host.Module
}

func load(ctx context.Context, opts options, log *zap.Logger) (*session, error) {
	text, err := os.ReadFile(opts.witFile)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	p, err := schema.Parse(string(text))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &host.Config{
		Logger:     log,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		EnableWASI: opts.wasi,
	}
	if opts.trace {
		cfg.TraceWriter = os.Stderr
	}
	rt, err := host.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	if err := registerStubs(rt, p, log); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	mod, err := rt.Load(ctx, data, p)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("load module: %w", err)
	}
	return &session{rt: rt, mod: mod}, nil
}

func (s *session) Close(ctx context.Context) {
	s.rt.Close(ctx)
}

func run(ctx context.Context, opts options, log *zap.Logger) error {
	s, err := load(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	fmt.Printf("Module: %s\n", opts.wasmFile)
	fmt.Printf("\nExported functions:\n")
	for _, e := range s.mod.Exports() {
		fmt.Printf("  %s\n", describeExport(e))
	}
	if opts.list {
		return nil
	}
	if opts.funcName == "" {
		fmt.Printf("\nNo function specified.\n")
		return nil
	}

	fn, ok := s.mod.Protocol().Export(opts.funcName)
	if !ok {
		return fmt.Errorf("function %q is not in the protocol", opts.funcName)
	}
	args, err := convertArgs(fn, opts.args)
	if err != nil {
		return err
	}

	inst, err := s.mod.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	fmt.Printf("\nCalling %s(%s)...\n", fn.Name, strings.Join(opts.args, ", "))
	result, err := callExport(ctx, inst, fn, args)
	if err != nil {
		return fmt.Errorf("call %s: %w", fn.Name, err)
	}
	fmt.Printf("Result: %s\n", formatResult(result))
	return nil
}

// callExport calls fn and decodes its result into a generic value. Async
// exports are awaited until ctx is done.
func callExport(ctx context.Context, inst *host.Instance, fn *schema.Function, args []any) (any, error) {
	if !fn.Async {
		return inst.Call(ctx, fn.Name, args...)
	}

	fut, err := inst.CallAsync(ctx, fn.Name, args...)
	if err != nil {
		return nil, err
	}
	data, err := fut.Await(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	var out any
	if err := codec.Deserialize(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func describeExport(e host.Export) string {
	if e.Function == nil {
		return fmt.Sprintf("%s (%s, not in protocol)", e.Name, e.Symbol)
	}
	return e.Function.String()
}
