package build

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig wraps settings that make a pass impossible, such as a
	// voxel size that would exceed the grid ceiling.
	ErrConfig = errors.New("build: configuration error")

	// ErrPrecondition is returned when a stage is requested before the
	// stages it depends on. It is distinct from an empty result.
	ErrPrecondition = errors.New("build: precondition failed")

	ErrNotSerialized = fmt.Errorf("%w: builder is not serialized", ErrPrecondition)
	ErrNotSampled    = fmt.Errorf("%w: builder is not sampled", ErrPrecondition)
	ErrNoMesh        = fmt.Errorf("%w: no mesh has been generated", ErrPrecondition)

	// ErrBatchInProgress rejects a batch that overlaps one still running.
	ErrBatchInProgress = errors.New("build: batch bake already in progress")
)
