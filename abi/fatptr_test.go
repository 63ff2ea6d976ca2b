package abi

import (
	"math"
	"testing"

	"github.com/wippyai/fp-bridge/errors"
)

func TestFatPtrRoundTrip(t *testing.T) {
	tests := []struct {
		ptr, length uint32
	}{
		{0, 0},
		{16, 0},
		{16, 5},
		{0x10000, MaxBufferLen},
		{math.MaxUint32, 1},
	}
	for _, tt := range tests {
		fp := ToFatPtr(tt.ptr, tt.length)
		ptr, length := FromFatPtr(fp)
		if ptr != tt.ptr || length != tt.length {
			t.Errorf("FromFatPtr(ToFatPtr(%d, %d)) = (%d, %d)", tt.ptr, tt.length, ptr, length)
		}
		if fp.Ptr() != tt.ptr || fp.Len() != tt.length {
			t.Errorf("accessors of %v = (%d, %d)", fp, fp.Ptr(), fp.Len())
		}
	}
}

func TestFatPtrLayout(t *testing.T) {
	fp := ToFatPtr(0x11223344, 0x00000055)
	if uint64(fp) != 0x1122334400000055 {
		t.Errorf("fat pointer = 0x%016x, want ptr in the high half", uint64(fp))
	}
	if !FatPtr(0).IsZero() || fp.IsZero() {
		t.Error("IsZero only holds for the zero sentinel")
	}
}

func TestFatPtrValidate(t *testing.T) {
	if err := ToFatPtr(32, MaxBufferLen).Validate(); err != nil {
		t.Errorf("max length should validate: %v", err)
	}

	fp := ToFatPtr(32, 0x01000004)
	if fp.ExtensionBits() != 0x01000000 {
		t.Errorf("ExtensionBits = 0x%x", fp.ExtensionBits())
	}
	err := fp.Validate()
	if !errors.IsProtocolViolation(err) {
		t.Fatalf("Validate = %v, want protocol violation", err)
	}
}

func TestCheckBufferLen(t *testing.T) {
	for _, n := range []int{0, 1, MaxBufferLen} {
		if err := CheckBufferLen(n); err != nil {
			t.Errorf("CheckBufferLen(%d) = %v", n, err)
		}
	}
	for _, n := range []int{-1, MaxBufferLen + 1} {
		if err := CheckBufferLen(n); !errors.IsProtocolViolation(err) {
			t.Errorf("CheckBufferLen(%d) = %v, want protocol violation", n, err)
		}
	}
}

func TestNames(t *testing.T) {
	if got := ExportName("fetch-data"); got != "__fp_gen_fetch_data" {
		t.Errorf("ExportName = %q", got)
	}
	name, ok := FunctionName("__fp_gen_add")
	if !ok || name != "add" {
		t.Errorf("FunctionName = %q, %v", name, ok)
	}
	for _, sym := range []string{"__fp_malloc", "__fp_gen_", "memory"} {
		if _, ok := FunctionName(sym); ok {
			t.Errorf("FunctionName(%q) should not match", sym)
		}
	}
}
