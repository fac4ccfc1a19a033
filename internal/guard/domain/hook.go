package domain

import (
	"fmt"
	"strings"
)

// HookDescriptor names one interception point to install.
type HookDescriptor struct {
	Name     string // exported symbol, e.g. "getaddrinfo"
	Library  string // library that exports it, e.g. "libc.so"
	Enabled  bool
	Priority int // higher installs first
}

// Validate checks required fields.
func (d HookDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("hook name must not be empty")
	}
	if strings.TrimSpace(d.Library) == "" {
		return fmt.Errorf("hook library must not be empty")
	}
	return nil
}

// HookState is the install state of one hook record.
//
// Uninstalled -> Installing -> Installed -> Uninstalling -> Uninstalled
type HookState uint32

const (
	HookUninstalled HookState = iota
	HookInstalling
	HookInstalled
	HookUninstalling
)

// String returns the textual representation of the HookState.
func (s HookState) String() string {
	switch s {
	case HookUninstalled:
		return "uninstalled"
	case HookInstalling:
		return "installing"
	case HookInstalled:
		return "installed"
	case HookUninstalling:
		return "uninstalling"
	default:
		return "unknown"
	}
}

// RequestHandler is the callback an installed hook runs for each intercepted
// request. The returned verdict tells the hook whether to let the call through.
type RequestHandler func(Request) Verdict
