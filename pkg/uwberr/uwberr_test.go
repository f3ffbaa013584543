// Copyright (C) 2026  dw3000-go authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package uwberr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		err  *DriverError
		want string
	}{
		{ShortReadError("read_reg", 4, 1), "[TRANSPORT_SHORT_READ:read_reg] short read: want 4 bytes, got 1"},
		{ConfigSectionError("spi"), "[CONFIG_SECTION:spi] section 'spi' not found"},
		{BudgetError("no shape"), "[BUDGET] no shape"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	inner := fmt.Errorf("device gone")
	err := TransportError("write_reg", inner)
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is(err, inner) = false, want true")
	}
	if err.Code != ErrTransport {
		t.Errorf("Code = %q, want %q", err.Code, ErrTransport)
	}
}

func TestCategoryChecks(t *testing.T) {
	tests := []struct {
		err       error
		transport bool
		hardware  bool
		config    bool
		probe     bool
	}{
		{CRCMismatchError("masked_write", 0x5A, 0xA5), true, false, false, false},
		{HWRejectedError("tx_frame", "late"), false, true, false, false},
		{ConfigOptionError("coex", "margin"), false, false, true, false},
		{ProbeDevIDError(0xFFFFFFFF), false, false, false, true},
		{errors.New("plain"), false, false, false, false},
	}
	for _, tt := range tests {
		if got := IsTransport(tt.err); got != tt.transport {
			t.Errorf("IsTransport(%v) = %v, want %v", tt.err, got, tt.transport)
		}
		if got := IsHardware(tt.err); got != tt.hardware {
			t.Errorf("IsHardware(%v) = %v, want %v", tt.err, got, tt.hardware)
		}
		if got := IsConfig(tt.err); got != tt.config {
			t.Errorf("IsConfig(%v) = %v, want %v", tt.err, got, tt.config)
		}
		if got := IsProbe(tt.err); got != tt.probe {
			t.Errorf("IsProbe(%v) = %v, want %v", tt.err, got, tt.probe)
		}
	}
}

func TestSetContext(t *testing.T) {
	err := ProbeDevIDError(0x11223344)
	if got := err.Context["dev_id"]; got != uint32(0x11223344) {
		t.Errorf("Context[dev_id] = %v, want 0x11223344", got)
	}
}

func TestRecoverPanic(t *testing.T) {
	var got *DriverError
	func() {
		defer func() { got = RecoverPanic() }()
		panic("irq handler blew up")
	}()
	if got == nil {
		t.Fatalf("RecoverPanic returned nil after panic")
	}
	if got.Code != ErrRuntime {
		t.Errorf("Code = %q, want %q", got.Code, ErrRuntime)
	}
}
