package host

import (
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/fp-bridge/abi"
)

// Config holds configuration for runtime creation. The zero value is usable.
type Config struct {
	// Logger overrides the package logger for this runtime.
	Logger *zap.Logger

	// TraceWriter receives one line per guest and host function call when
	// set. Tracing is slow; use it for debugging only.
	TraceWriter io.Writer

	// Stdout and Stderr receive the guest's WASI output. Discarded when nil.
	Stdout io.Writer
	Stderr io.Writer

	// Namespace is the import module holding the generated imports and
	// __fp_host_resolve_async_value. Defaults to "fp".
	Namespace string

	// StartFunctions are run on instantiation, in order. nil keeps the
	// wazero default ("_start"); Go reactors built with -buildmode=c-shared
	// need "_initialize".
	StartFunctions []string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1, which guests compiled
	// with GOOS=wasip1 import.
	EnableWASI bool
}

func (c *Config) namespace() string {
	if c.Namespace == "" {
		return abi.ImportModule
	}
	return c.Namespace
}

func (c *Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return Logger()
}
