// Package permission models the OS-level capabilities the pipeline depends
// on. Capture refuses to start without microphone access, and typed
// insertion degrades to clipboard delivery when input control is missing.
package permission

import "fmt"

// Capability is an OS permission the application may need.
type Capability string

const (
	// Microphone is required to capture audio.
	Microphone Capability = "microphone"

	// Accessibility is required on some platforms to read the focused
	// window.
	Accessibility Capability = "accessibility"

	// InputMonitoring is required to register global hotkeys.
	InputMonitoring Capability = "input-monitoring"
)

// Status is the grant state of a capability.
type Status int

const (
	// Undetermined means the user has not been asked yet.
	Undetermined Status = iota

	// Granted means the capability is available.
	Granted

	// Denied means the user refused the capability.
	Denied
)

// String returns a stable status name.
func (s Status) String() string {
	switch s {
	case Undetermined:
		return "undetermined"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Provider reports capability grant state.
type Provider interface {
	// Check returns the current status of a capability.
	Check(c Capability) Status
}

// compile-time interface check
var _ Provider = (*Static)(nil)

// Static is a Provider with a fixed capability table. Capabilities not in
// the table report [Undetermined]. Useful on platforms without a permission
// broker and in tests.
type Static struct {
	grants map[Capability]Status
}

// NewStatic builds a Static provider from a grant table. The map is copied.
func NewStatic(grants map[Capability]Status) *Static {
	cp := make(map[Capability]Status, len(grants))
	for c, s := range grants {
		cp[c] = s
	}
	return &Static{grants: cp}
}

// AllGranted returns a provider that grants every capability. This is the
// default on Linux where capture and input injection need no broker consent.
func AllGranted() *Static {
	return NewStatic(map[Capability]Status{
		Microphone:      Granted,
		Accessibility:   Granted,
		InputMonitoring: Granted,
	})
}

// Check implements [Provider].
func (p *Static) Check(c Capability) Status {
	return p.grants[c]
}
