// Package batch drives a resumable scraping run: it discovers tournaments,
// drains them one unit at a time and checkpoints after every unit.
package batch

import (
	"errors"
	"fmt"
)

// State is a batch engine state.
type State string

const (
	StateIdle        State = "IDLE"
	StateDiscovering State = "DISCOVERING"
	StateDraining    State = "DRAINING"
	StateFinalizing  State = "FINALIZING"
	StateCancelled   State = "CANCELLED"
)

var (
	// ErrInvalidTransition is returned for a state change the machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRunActive is returned when an operation needs an idle engine.
	ErrRunActive = errors.New("a run is active")

	// ErrNoTournaments is returned when discovery found nothing to process.
	ErrNoTournaments = errors.New("discovery found no tournaments")

	// ErrCancelled is returned when a cancel request was honoured, or when
	// the stored checkpoint was removed or replaced while the run was driven.
	ErrCancelled = errors.New("run cancelled")

	// ErrNoSource is returned by operations that fetch from a site when the
	// engine was built for checkpoint maintenance only.
	ErrNoSource = errors.New("batch engine requires a source")
)

// transitions lists the legal successors of each state. IDLE may jump to
// DRAINING or FINALIZING when a checkpoint is resumed, and DRAINING returns
// to IDLE when a run is paused.
var transitions = map[State][]State{
	StateIdle:        {StateDiscovering, StateDraining, StateFinalizing},
	StateDiscovering: {StateDraining, StateIdle},
	StateDraining:    {StateFinalizing, StateCancelled, StateIdle},
	StateFinalizing:  {StateIdle, StateCancelled},
	StateCancelled:   {StateIdle},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidTransition when s cannot move to next.
func (s State) checkTransition(next State) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// Active reports whether a run is in progress.
func (s State) Active() bool {
	return s == StateDiscovering || s == StateDraining || s == StateFinalizing
}
