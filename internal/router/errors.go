package router

import (
	"errors"
	"fmt"

	"github.com/perculacms/aicore/internal/types"
)

// ErrNoActiveModel is returned when the registry has no usable model.
var ErrNoActiveModel = errors.New("no active AI model configured")

// ErrAlreadyFinalized is returned when a job entry is completed or failed twice.
var ErrAlreadyFinalized = errors.New("job already finalized")

// UnsupportedVendorError is returned when no adapter is registered for a vendor.
type UnsupportedVendorError struct {
	Vendor types.VendorType
}

func (e *UnsupportedVendorError) Error() string {
	return fmt.Sprintf("unsupported vendor type: %q", string(e.Vendor))
}
