package kdtree

import "github.com/pkg/errors"

// Tunables controlling when the builder stops splitting.
type BuildOptions struct {
	// Nodes holding fewer triangles than this become leafs.
	MaxTrianglesPerLeaf int

	// Nodes whose volume drops below this fraction of the scene volume
	// become leafs. Must lie in [0, 1].
	MinLeafVolumeMultiplier float32
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxTrianglesPerLeaf:     8,
		MinLeafVolumeMultiplier: 0.0001,
	}
}

func (o BuildOptions) Validate() error {
	if o.MaxTrianglesPerLeaf < 1 {
		return errors.Errorf("kd-tree: max triangles per leaf must be at least 1; got %d", o.MaxTrianglesPerLeaf)
	}
	if !(o.MinLeafVolumeMultiplier >= 0 && o.MinLeafVolumeMultiplier <= 1) {
		return errors.Errorf("kd-tree: min leaf volume multiplier must lie in [0, 1]; got %v", o.MinLeafVolumeMultiplier)
	}
	return nil
}
