package edge

import "errors"

// State is a position in the worker lifecycle:
//
//	Parsed -> Installing -> Installed -> Activating -> Activated
//
// A failed install ends in Redundant.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTransition is returned when a lifecycle step is invoked from
	// the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrCacheInstallFailed is returned when any shell URL could not be
	// fetched with a 200; nothing is written in that case.
	ErrCacheInstallFailed = errors.New("cache install failed")

	// ErrNoPreviousGeneration is returned by Resume when no earlier
	// generation is stored.
	ErrNoPreviousGeneration = errors.New("no previous cache generation")
)
