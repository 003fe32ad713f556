package cmd

import (
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/kbiElude/Emerald-sub008/kdtree"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// The pinhole executor derives a primary ray direction from three float4
// entries in the direction buffer: the direction through the top-left frame
// corner and the per-column and per-row steps. Each origin renders one row.
const pinholeRayDirectionCode = `
    ray_direction = normalize(
        ray_directions[ray_direction_offset].xyz +
        ((float)lane + 0.5f) * ray_directions[ray_direction_offset + 1].xyz +
        ((float)ray_origin_index + 0.5f) * ray_directions[ray_direction_offset + 2].xyz
    );
`

func pinholeExecutorConfig() kdtree.ExecutorConfig {
	return kdtree.ExecutorConfig{
		Name:             "pinhole",
		RayDirectionCode: pinholeRayDirectionCode,
		Variants:         kdtree.VariantInlineOrigin,
		HostHooks: kdtree.HostHooks{
			RayDirection: pinholeRayDirection,
		},
	}
}

func pinholeRayDirection(ray kdtree.RayContext) types.Vec3 {
	corner := readDirection(ray.Directions, ray.DirectionOffset)
	colStep := readDirection(ray.Directions, ray.DirectionOffset+1)
	rowStep := readDirection(ray.Directions, ray.DirectionOffset+2)

	return corner.
		Add(colStep.Mul(float32(ray.Lane) + 0.5)).
		Add(rowStep.Mul(float32(ray.OriginIndex) + 0.5)).
		Normalize()
}

func readDirection(data []byte, index uint32) types.Vec3 {
	f := kdtree.DecodeFloat32s(data[16*int(index) : 16*int(index)+12])
	return types.XYZ(f[0], f[1], f[2])
}

// A pinhole camera looking from eye towards target.
type camera struct {
	eye    types.Vec3
	target types.Vec3
	up     types.Vec3
	fovDeg float32
}

// Compute the frame corner direction and the per-pixel column and row steps
// for a width x height frame.
func (c camera) frame(width, height int) (corner, colStep, rowStep types.Vec3, err error) {
	forward := c.target.Sub(c.eye)
	if forward.Len() == 0 {
		return corner, colStep, rowStep, errors.New("camera eye and target coincide")
	}
	forward = forward.Normalize()

	right := forward.Cross(c.up)
	if right.Len() == 0 {
		return corner, colStep, rowStep, errors.New("camera up vector is parallel to the view direction")
	}
	right = right.Normalize()
	up := right.Cross(forward)

	halfHeight := math32.Tan(0.5 * c.fovDeg * math32.Pi / 180)
	halfWidth := halfHeight * float32(width) / float32(height)

	corner = forward.Sub(right.Mul(halfWidth)).Add(up.Mul(halfHeight))
	colStep = right.Mul(2 * halfWidth / float32(width))
	rowStep = up.Mul(-2 * halfHeight / float32(height))
	return corner, colStep, rowStep, nil
}

// Parse a vector in "x,y,z" form.
func parseVec3(value string) (types.Vec3, error) {
	var v types.Vec3
	tokens := strings.Split(value, ",")
	if len(tokens) != 3 {
		return v, errors.Errorf("invalid vector %q; expected x,y,z", value)
	}
	for i, token := range tokens {
		f, err := strconv.ParseFloat(strings.TrimSpace(token), 32)
		if err != nil {
			return v, errors.Wrapf(err, "invalid vector %q", value)
		}
		v[i] = float32(f)
	}
	return v, nil
}
