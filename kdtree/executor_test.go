package kdtree

import (
	"strconv"
	"strings"
	"testing"

	"github.com/kbiElude/Emerald-sub008/compute/cpu"
	"github.com/stretchr/testify/require"
)

func TestLoadExecutorConfigs(t *testing.T) {
	payload := `
executors:
  - name: depth
    variants: [inline]
  - name: visibility
    variants: [inline, buffer]
    ray_direction_code: ray_direction = normalize(ray_directions[lane].xyz - ray_origin.xyz);
    reset_code: result[ray_index] = 1.0f;
    update_code: result[ray_index] = 0.0f;
`
	cfgs, err := LoadExecutorConfigs(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	require.Equal(t, "depth", cfgs[0].Name)
	require.Equal(t, VariantInlineOrigin, cfgs[0].Variants)
	require.Empty(t, cfgs[0].UpdateCode)

	require.Equal(t, VariantInlineOrigin|VariantBufferOrigin, cfgs[1].Variants)
	require.Equal(t, "inline|buffer", cfgs[1].Variants.String())
	require.Equal(t, "result[ray_index] = 0.0f;", cfgs[1].UpdateCode)
}

func TestLoadExecutorConfigsErrors(t *testing.T) {
	specs := []string{
		"executors:\n  - name: bad\n    variants: [sideways]\n",
		"executors:\n  - name: 1bad\n    variants: [inline]\n",
		"executors:\n  - name: novariants\n",
		"executors: [",
	}
	for specIndex, payload := range specs {
		if _, err := LoadExecutorConfigs(strings.NewReader(payload)); err == nil {
			t.Errorf("[spec %d] expected an error", specIndex)
		}
	}
}

func TestGenerateKernelSource(t *testing.T) {
	cfg := ExecutorConfig{
		Name:       "vis",
		UpdateCode: "result[ray_index] = hit_u;",
		Variants:   VariantInlineOrigin | VariantBufferOrigin,
	}

	inline := generateKernelSource(kernelName(cfg.Name, VariantInlineOrigin), VariantInlineOrigin, cfg)
	require.Contains(t, inline, "__kernel void kdtree_intersect_vis_inline(")
	require.Contains(t, inline, "float4                     ray_origin_value,")
	require.Contains(t, inline, "result[ray_index] = hit_u;")
	require.Contains(t, inline, defaultResetCode)
	require.NotContains(t, inline, "{{")

	buffered := generateKernelSource(kernelName(cfg.Name, VariantBufferOrigin), VariantBufferOrigin, cfg)
	require.Contains(t, buffered, "__kernel void kdtree_intersect_vis_buffer(")
	require.Contains(t, buffered, "ray_origins[ray_origin_stride_offset + ray_origin_index]")

	// Every argument slot is declared once and in order.
	last := -1
	for slot := 0; slot <= argRayOriginStrideOffset; slot++ {
		marker := "/* " + strconv.Itoa(slot) + " */"
		idx := strings.Index(inline, marker)
		require.Greater(t, idx, last, "slot %d", slot)
		last = idx
	}
}

func TestExecutorRegistry(t *testing.T) {
	reg := executorRegistry{ctx: cpu.NewContext(0)}

	id, err := reg.add(ExecutorConfig{Name: "a", Variants: VariantInlineOrigin})
	require.NoError(t, err)
	require.Equal(t, ExecutorID(0), id)

	id, err = reg.add(ExecutorConfig{Name: "b", Variants: VariantBufferOrigin | VariantInlineOrigin})
	require.NoError(t, err)
	require.Equal(t, ExecutorID(1), id)

	e, err := reg.get(1)
	require.NoError(t, err)
	require.Equal(t, "b", e.Name())
	_, err = e.kernel(VariantBufferOrigin)
	require.NoError(t, err)

	e, err = reg.get(0)
	require.NoError(t, err)
	_, err = e.kernel(VariantBufferOrigin)
	require.ErrorIs(t, err, ErrVariantUnsupported)

	_, err = reg.add(ExecutorConfig{Name: "a", Variants: VariantInlineOrigin})
	require.Error(t, err)

	_, err = reg.get(5)
	require.ErrorIs(t, err, ErrUnknownExecutor)

	reg.release()
	_, err = reg.get(0)
	require.ErrorIs(t, err, ErrUnknownExecutor)
}
