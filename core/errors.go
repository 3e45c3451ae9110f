package core

import (
	"errors"

	"github.com/signalsfoundry/supplier-sim/kb"
)

var (
	// ErrIndexLookup indicates the day cursor ran past the panel or the demand
	// schedule. Re-exported so callers can depend on core alone.
	ErrIndexLookup = kb.ErrIndexLookup
	// ErrAllocationInfeasible indicates an action subset the resolver cannot
	// accept. It is raised before any optimizer dispatch.
	ErrAllocationInfeasible = errors.New("allocation infeasible")
	// ErrDegenerateSummary marks a terminal statistic computed over a
	// zero-sum history. It is a warning, never returned from Step.
	ErrDegenerateSummary = errors.New("degenerate summary")
	// ErrHistoryMisaligned indicates the history columns drifted apart.
	ErrHistoryMisaligned = errors.New("history columns misaligned")
	// ErrInvalidConfig indicates an EnvConfig that cannot drive an episode.
	ErrInvalidConfig = errors.New("invalid environment config")
)
