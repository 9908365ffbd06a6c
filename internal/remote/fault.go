package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Fault codes surfaced by Store implementations. Backends map their native
// failure modes onto these codes so recovery classification works the same
// against any backend.
const (
	FaultNotFound             = "NOT_FOUND"
	FaultDuplicateRecord      = "DUPLICATE_RECORD"
	FaultDuplicateAssociation = "DUPLICATE_ASSOCIATION"
	FaultInvalidRequest       = "INVALID_REQUEST"
	FaultInternal             = "INTERNAL"
)

// Fault is one per-item failure from the remote store. Detail chains nested
// causes, preserved end to end so a batch item's full failure context
// reaches the caller's error report.
type Fault struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  *Fault `json:"detail,omitempty"`
}

// Error implements the error interface, rendering the full detail chain.
func (f *Fault) Error() string {
	var b strings.Builder
	for cur := f; cur != nil; cur = cur.Detail {
		if cur != f {
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "%s: %s", cur.Code, cur.Message)
	}
	return b.String()
}

// Unwrap exposes the nested cause for errors.As traversal.
func (f *Fault) Unwrap() error {
	if f.Detail == nil {
		return nil
	}
	return f.Detail
}

// NewFault creates a fault with the given code.
func NewFault(code, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapFault wraps err as the detail of a new fault. A non-Fault err becomes
// an INTERNAL leaf so the chain stays structured.
func WrapFault(code, message string, err error) *Fault {
	f := &Fault{Code: code, Message: message}
	if err == nil {
		return f
	}
	var inner *Fault
	if errors.As(err, &inner) {
		f.Detail = inner
	} else {
		f.Detail = &Fault{Code: FaultInternal, Message: err.Error()}
	}
	return f
}

// AsFault extracts a *Fault from err, converting foreign errors to an
// INTERNAL fault so batch results always carry structured failures.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Code: FaultInternal, Message: err.Error()}
}

// HasCode reports whether code appears anywhere in the fault chain.
func (f *Fault) HasCode(code string) bool {
	for cur := f; cur != nil; cur = cur.Detail {
		if cur.Code == code {
			return true
		}
	}
	return false
}
