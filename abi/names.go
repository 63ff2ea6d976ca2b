package abi

import "strings"

// Symbols shared by every guest and host.
const (
	ImportModule = "fp"
	GenPrefix    = "__fp_gen_"

	MallocName       = "__fp_malloc"
	FreeName         = "__fp_free"
	GuestResolveName = "__fp_guest_resolve_async_value"
	HostResolveName  = "__fp_host_resolve_async_value"
)

// ExportName returns the boundary symbol of a protocol function.
// Kebab-case names are mapped to snake_case: fetch-data -> __fp_gen_fetch_data.
func ExportName(fn string) string {
	return GenPrefix + strings.ReplaceAll(fn, "-", "_")
}

// FunctionName is the inverse of ExportName. ok is false for symbols
// outside the generated namespace.
func FunctionName(symbol string) (name string, ok bool) {
	if !strings.HasPrefix(symbol, GenPrefix) || len(symbol) == len(GenPrefix) {
		return "", false
	}
	return symbol[len(GenPrefix):], true
}
