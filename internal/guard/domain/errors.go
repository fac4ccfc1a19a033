package domain

import "errors"

var (
	// ErrSymbolNotFound is returned when a hook's symbol cannot be resolved.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrHookingUnavailable is returned when no hooking collaborator is present.
	ErrHookingUnavailable = errors.New("hooking unavailable")
)
