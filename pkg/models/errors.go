package models

import "errors"

var (
	// ErrCapacityExceeded means an assignment would overrun a host's CPU or memory
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNoCapacity means no eligible host could take a workload
	ErrNoCapacity = errors.New("no capacity")

	// ErrInvalidConfiguration is returned by constructors for weights or thresholds out of range
	ErrInvalidConfiguration = errors.New("invalid configuration")

	ErrUnknownHost       = errors.New("unknown host")
	ErrUnknownWorkload   = errors.New("unknown workload")
	ErrDuplicateHost     = errors.New("host already registered")
	ErrDuplicateWorkload = errors.New("workload already assigned")
	ErrHostShutdown      = errors.New("host is shut down")
	ErrHostBusy          = errors.New("host still holds workloads")
)

// ErrNotFound is returned by history stores for missing records
var ErrNotFound = errors.New("not found")
