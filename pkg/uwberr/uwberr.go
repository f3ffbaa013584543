// Unified error handling for the DW3000 host driver
//
// Copyright (C) 2026  dw3000-go authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package uwberr

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Transport errors
	ErrTransport      ErrorCode = "TRANSPORT"
	ErrTransportShort ErrorCode = "TRANSPORT_SHORT_READ"
	ErrTransportCRC   ErrorCode = "TRANSPORT_CRC"
	ErrTransportFrame ErrorCode = "TRANSPORT_FRAME"

	// Timing budget errors
	ErrBudget      ErrorCode = "BUDGET"
	ErrBudgetRange ErrorCode = "BUDGET_RANGE"

	// Hardware errors
	ErrHWRejected ErrorCode = "HW_REJECTED"
	ErrHWTimeout  ErrorCode = "HW_TIMEOUT"
	ErrHWFault    ErrorCode = "HW_FAULT"

	// Probe errors
	ErrProbe      ErrorCode = "PROBE"
	ErrProbeDevID ErrorCode = "PROBE_DEV_ID"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"
)

// DriverError is the unified error type for the host driver
type DriverError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Op is the bus or device operation in flight (if applicable)
	Op string

	// Register is the register file involved (if applicable)
	Register string

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *DriverError) Error() string {
	switch {
	case e.Op != "":
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Op, e.Message)
	case e.Section != "":
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DriverError) Unwrap() error {
	return e.Err
}

// SetOp sets the operation name
func (e *DriverError) SetOp(op string) *DriverError {
	e.Op = op
	return e
}

// SetRegister sets the register file name
func (e *DriverError) SetRegister(reg string) *DriverError {
	e.Register = reg
	return e
}

// SetSection sets the context section
func (e *DriverError) SetSection(section string) *DriverError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *DriverError) SetOption(option string) *DriverError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *DriverError) SetContext(key string, value interface{}) *DriverError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *DriverError {
	return &DriverError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new DriverError
func New(code ErrorCode, message string) *DriverError {
	return &DriverError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *DriverError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for missing or invalid config option
func ConfigOptionError(section, option string) *DriverError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *DriverError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *DriverError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Transport errors

// TransportError creates an error for a failed bus operation
func TransportError(op string, err error) *DriverError {
	return Wrap(err, ErrTransport, fmt.Sprintf("bus %s failed", op)).
		SetOp(op)
}

// ShortReadError creates an error for a truncated bus read
func ShortReadError(op string, want, got int) *DriverError {
	return New(ErrTransportShort, fmt.Sprintf("short read: want %d bytes, got %d", want, got)).
		SetOp(op)
}

// CRCMismatchError creates an error for a CRC check failure on a guarded write
func CRCMismatchError(op string, want, got byte) *DriverError {
	return New(ErrTransportCRC, fmt.Sprintf("crc mismatch: want %#02x, got %#02x", want, got)).
		SetOp(op)
}

// FrameError creates an error for a malformed transaction header or body
func FrameError(op string, reason string) *DriverError {
	return New(ErrTransportFrame, reason).
		SetOp(op)
}

// Timing budget errors

// BudgetError creates an error for a timing budget computation failure
func BudgetError(message string) *DriverError {
	return New(ErrBudget, message)
}

// BudgetRangeError creates an error for a parameter outside its computable range
func BudgetRangeError(param string, value interface{}) *DriverError {
	return New(ErrBudgetRange, fmt.Sprintf("%s out of range: %v", param, value)).
		SetContext(param, value)
}

// Hardware errors

// HWRejectedError creates an error for a command the chip refused to start
func HWRejectedError(op string, reason string) *DriverError {
	return New(ErrHWRejected, reason).
		SetOp(op)
}

// HWTimeoutError creates an error for a hardware wait that expired
func HWTimeoutError(op string, reason string) *DriverError {
	return New(ErrHWTimeout, reason).
		SetOp(op)
}

// HWFaultError creates an error for an unexpected hardware fault condition
func HWFaultError(op string, reason string) *DriverError {
	return New(ErrHWFault, reason).
		SetOp(op)
}

// Probe errors

// ProbeError creates an error for a failed device probe
func ProbeError(reason string) *DriverError {
	return New(ErrProbe, reason)
}

// ProbeDevIDError creates an error for an unrecognized device identifier
func ProbeDevIDError(devID uint32) *DriverError {
	return New(ErrProbeDevID, fmt.Sprintf("unrecognized device id %#08x", devID)).
		SetContext("dev_id", devID)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *DriverError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure
func RuntimeErrorInit(component string, reason string) *DriverError {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// RecoverPanic safely recovers from panic and converts to error
func RecoverPanic() *DriverError {
	if r := recover(); r != nil {
		var err error
		switch x := r.(type) {
		case string:
			err = RuntimeError(fmt.Sprintf("panic: %s", x))
		case error:
			err = RuntimeError(x.Error())
		case runtime.Error:
			err = RuntimeError(x.Error())
		default:
			err = RuntimeError(fmt.Sprintf("panic: %v", x))
		}
		return err.(*DriverError)
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if derr, ok := err.(*DriverError); ok {
		return derr.Code == code
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsTransport checks if error is a transport error
func IsTransport(err error) bool {
	return Is(err, ErrTransport) ||
		Is(err, ErrTransportShort) ||
		Is(err, ErrTransportCRC) ||
		Is(err, ErrTransportFrame)
}

// IsHardware checks if error is a hardware error
func IsHardware(err error) bool {
	return Is(err, ErrHWRejected) ||
		Is(err, ErrHWTimeout) ||
		Is(err, ErrHWFault)
}

// IsProbe checks if error is a probe error
func IsProbe(err error) bool {
	return Is(err, ErrProbe) ||
		Is(err, ErrProbeDevID)
}
