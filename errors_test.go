package paraprof

import (
	"errors"
	"fmt"
	"testing"
)

func TestStructuredErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		wantOp   string
		wantMsg  string
		checkFn  func(error) bool
	}{
		{
			name:     "Memory Error",
			err:      ErrOutOfMemory,
			wantType: ErrTypeMemory,
			wantOp:   "Malloc",
			wantMsg:  "out of memory",
			checkFn:  IsMemoryError,
		},
		{
			name:     "Invalid Arg Error",
			err:      ErrInvalidSize,
			wantType: ErrTypeInvalidArg,
			wantOp:   "Malloc",
			wantMsg:  "size must be positive",
			checkFn:  IsInvalidArgError,
		},
		{
			name:     "Invalid Device Error",
			err:      ErrInvalidDevice,
			wantType: ErrTypeInvalidArg,
			wantOp:   "SetDevice",
			wantMsg:  "invalid device ID",
			checkFn:  IsInvalidArgError,
		},
		{
			name:     "Destroyed Context Error",
			err:      ErrContextDestroyed,
			wantType: ErrTypeDevice,
			wantOp:   "Context",
			wantMsg:  "context destroyed",
			checkFn:  IsDeviceError,
		},
		{
			name:     "Communication Error",
			err:      NewCommunicationError("Reduce", "length mismatch", nil),
			wantType: ErrTypeCommunication,
			wantOp:   "Reduce",
			wantMsg:  "length mismatch",
			checkFn:  IsCommunicationError,
		},
		{
			name:     "Numerical Error",
			err:      NewNumericalError("Verify", "sample mismatch", 3),
			wantType: ErrTypeNumerical,
			wantOp:   "Verify",
			wantMsg:  "sample mismatch",
			checkFn:  IsNumericalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *Error
			if !errors.As(tt.err, &e) {
				t.Fatalf("Expected *Error, got %T", tt.err)
			}
			if e.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", e.Type, tt.wantType)
			}
			if e.Op != tt.wantOp {
				t.Errorf("Op = %v, want %v", e.Op, tt.wantOp)
			}
			if e.Message != tt.wantMsg {
				t.Errorf("Message = %v, want %v", e.Message, tt.wantMsg)
			}
			if !tt.checkFn(tt.err) {
				t.Errorf("Type check function returned false")
			}
			if tt.err.Error() == "" {
				t.Error("Error string is empty")
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	baseErr := errors.New("base error")
	wrapped := NewMemoryError("Test", "wrapped error", baseErr)

	if !errors.Is(wrapped, baseErr) {
		t.Error("errors.Is() should return true for wrapped error")
	}

	// Classification survives fmt wrapping.
	outer := fmt.Errorf("rank 2: %w", wrapped)
	if !IsMemoryError(outer) {
		t.Error("IsMemoryError should see through fmt.Errorf wrapping")
	}
	if IsInvalidArgError(outer) {
		t.Error("IsInvalidArgError should be false for a memory error")
	}
}

func TestErrorTypeString(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{ErrTypeMemory, "Memory"},
		{ErrTypeInvalidArg, "InvalidArgument"},
		{ErrTypeExecution, "Execution"},
		{ErrTypeNumerical, "Numerical"},
		{ErrTypeDevice, "Device"},
		{ErrTypeCommunication, "Communication"},
		{ErrTypeNotImplemented, "NotImplemented"},
		{ErrorType(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}
