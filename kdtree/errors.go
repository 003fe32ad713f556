package kdtree

import "github.com/pkg/errors"

var (
	ErrEmptyMesh          = errors.New("kd-tree: mesh has no triangles")
	ErrInvalidFile        = errors.New("kd-tree: invalid or incompatible kd-tree file")
	ErrUnknownExecutor    = errors.New("kd-tree: unknown executor")
	ErrNoComputeContext   = errors.New("kd-tree: no compute context attached")
	ErrVariantUnsupported = errors.New("kd-tree: executor was not created for this ray origin mode")
	ErrAborted            = errors.New("kd-tree: intersection aborted by progress callback")
)
