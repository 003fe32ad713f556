package kdtree

import (
	"fmt"

	"github.com/valyala/fasttemplate"
)

// Shared OpenCL helpers emitted once per program.
const kernelPrelude = `
#define KD_NODE_INTERNAL 1u
#define KD_NODE_LEAF     2u
#define KD_STACK_SIZE    64
#define KD_EPSILON       1e-6f
#define KD_NO_TRIANGLE   0xFFFFFFFFu
#define KD_BBOX_PADDING  1e-4f

typedef struct {
    uint  node;
    float t_min;
    float t_max;
} kd_stack_entry;

inline uint kd_read_uint(__global const uchar* kd, uint offset) {
    return *(__global const uint*)(kd + offset);
}

inline float kd_read_float(__global const uchar* kd, uint offset) {
    return *(__global const float*)(kd + offset);
}

inline bool kd_clip_ray(float4 bbox_min, float4 bbox_max, float3 o, float3 d, float* t_min, float* t_max) {
    float3 side = bbox_max.xyz - bbox_min.xyz;
    float3 pad = (float3)(KD_BBOX_PADDING * (1.0f + fmax(side.x, fmax(side.y, side.z))));
    float3 lo = bbox_min.xyz - pad;
    float3 hi = bbox_max.xyz + pad;
    if ((d.x == 0.0f && (o.x < lo.x || o.x > hi.x)) ||
        (d.y == 0.0f && (o.y < lo.y || o.y > hi.y)) ||
        (d.z == 0.0f && (o.z < lo.z || o.z > hi.z))) {
        return false;
    }
    float3 inv_d = 1.0f / d;
    float3 t0 = (lo - o) * inv_d;
    float3 t1 = (hi - o) * inv_d;
    float3 t_near = fmin(t0, t1);
    float3 t_far  = fmax(t0, t1);

    *t_min = fmax(0.0f, fmax(t_near.x, fmax(t_near.y, t_near.z)));
    *t_max = fmin(t_far.x, fmin(t_far.y, t_far.z));
    return *t_min <= *t_max;
}

inline bool kd_intersect_triangle(float3 o, float3 d, float3 v0, float3 v1, float3 v2, float* t, float* u, float* v) {
    float3 e1 = v1 - v0;
    float3 e2 = v2 - v0;
    float3 p = cross(d, e2);
    float det = dot(e1, p);
    if (fabs(det) < KD_EPSILON) {
        return false;
    }
    float inv_det = 1.0f / det;
    float3 s = o - v0;
    *u = dot(s, p) * inv_det;
    if (*u < 0.0f || *u > 1.0f) {
        return false;
    }
    float3 q = cross(s, e1);
    *v = dot(d, q) * inv_det;
    if (*v < 0.0f || *u + *v > 1.0f) {
        return false;
    }
    *t = dot(e2, q) * inv_det;
    return *t > KD_EPSILON;
}
`

// Template for a single traversal entry point. Argument order is fixed;
// host code binds arguments by slot.
const kernelTemplate = `
__kernel void {{kernel_name}}(
    float4                     bbox_min,                  /* 0 */
    float4                     bbox_max,                  /* 1 */
    {{origin_param}},                                     /* 2 */
    __global const float4*     ray_directions,            /* 3 */
    __global const uchar*      kd,                        /* 4 */
    __global float*            result,                    /* 5 */
    uint                       n_rays,                    /* 6 */
    uint                       triangle_list_offset,      /* 7 */
    uint                       triangle_id_offset,        /* 8 */
    __global const float4*     mesh_data,                 /* 9 */
    uint                       ray_origin_index,          /* 10 */
    __global uint*             triangle_hit_ids,          /* 11 */
    uint                       store_triangle_hit_data,   /* 12 */
    uint                       find_closest_intersection, /* 13 */
    uint                       ray_direction_offset,      /* 14 */
    uint                       mesh_normals_offset,       /* 15 */
    uint                       ray_origin_stride_offset)  /* 16 */
{
    const uint lane = get_global_id(0);
    if (lane >= n_rays) {
        return;
    }
    const uint ray_index = ray_origin_index * n_rays + lane;
    const float4 ray_origin = {{origin_load}};
    const float3 o = ray_origin.xyz;
    __global const float4* mesh_normals = mesh_data + mesh_normals_offset / 16;

    float3 ray_direction = ray_directions[ray_direction_offset + lane].xyz;
    {
{{ray_direction_code}}
    }
    const float3 d = ray_direction;

    float t_min, t_max;
    bool  found = false;
    float hit_distance = MAXFLOAT, hit_u = 0.0f, hit_v = 0.0f;
    uint  hit_triangle_id = KD_NO_TRIANGLE;
    uint4 hit_vertex_ids = (uint4)(KD_NO_TRIANGLE);

    if (kd_clip_ray(bbox_min, bbox_max, o, d, &t_min, &t_max)) {
        const float t_scene_max = t_max;
        kd_stack_entry stack[KD_STACK_SIZE];
        int stack_size = 0;
        stack[stack_size].node = 0;
        stack[stack_size].t_min = t_min;
        stack[stack_size].t_max = t_max;
        stack_size++;

        while (stack_size > 0) {
            stack_size--;
            uint  node  = stack[stack_size].node;
            float n_min = stack[stack_size].t_min;
            float n_max = stack[stack_size].t_max;
            if (found && n_min > hit_distance) {
                continue;
            }

            while (kd_read_uint(kd, node) == KD_NODE_INTERNAL) {
                uint  axis  = kd_read_uint(kd, node + 4) - 1;
                float split = kd_read_float(kd, node + 8);
                uint  left  = kd_read_uint(kd, node + 12);
                uint  right = kd_read_uint(kd, node + 16);
                float o_axis = axis == 0 ? o.x : (axis == 1 ? o.y : o.z);
                float d_axis = axis == 0 ? d.x : (axis == 1 ? d.y : d.z);

                bool near_is_left = o_axis < split || (o_axis == split && d_axis <= 0.0f);
                uint near_child = near_is_left ? left : right;
                uint far_child  = near_is_left ? right : left;
                if (d_axis == 0.0f) {
                    node = near_child;
                    continue;
                }

                float t_split = (split - o_axis) / d_axis;
                if (t_split > n_max || t_split <= 0.0f) {
                    node = near_child;
                } else if (t_split < n_min) {
                    node = far_child;
                } else {
                    if (stack_size < KD_STACK_SIZE) {
                        stack[stack_size].node = far_child;
                        stack[stack_size].t_min = t_split;
                        stack[stack_size].t_max = n_max;
                        stack_size++;
                    }
                    node = near_child;
                    n_max = t_split;
                }
            }

            uint list  = kd_read_uint(kd, node + 4);
            uint count = kd_read_uint(kd, node + 8);
            if (list < triangle_list_offset || list > triangle_id_offset || count > (triangle_id_offset - list) / 4) {
                count = 0;
            }
            bool stop = false;
            for (uint i = 0; i < count; i++) {
                uint  tri_id = kd_read_uint(kd, list + 4 * i);
                uint  rec    = triangle_id_offset + tri_id * 12;
                uint4 ids = (uint4)(kd_read_uint(kd, rec), kd_read_uint(kd, rec + 4), kd_read_uint(kd, rec + 8), 0);
                float3 v0 = mesh_data[ids.x].xyz;
                float3 v1 = mesh_data[ids.y].xyz;
                float3 v2 = mesh_data[ids.z].xyz;
                if (all(v0 == o) || all(v1 == o) || all(v2 == o)) {
                    continue;
                }

                float t, u, v;
                if (!kd_intersect_triangle(o, d, v0, v1, v2, &t, &u, &v)) {
                    continue;
                }
                if (find_closest_intersection) {
                    if (t <= hit_distance && t < t_scene_max) {
                        found = true;
                        hit_distance = t; hit_u = u; hit_v = v;
                        hit_triangle_id = tri_id; hit_vertex_ids = ids;
                    }
                } else if (t < t_scene_max) {
                    found = true;
                    hit_distance = t; hit_u = u; hit_v = v;
                    hit_triangle_id = tri_id; hit_vertex_ids = ids;
                    stop = true;
                    break;
                }
            }
            if (stop) {
                break;
            }
        }
    }

    if (found) {
        float3 hit_normal = normalize(
            (1.0f - hit_u - hit_v) * mesh_normals[hit_vertex_ids.x].xyz +
            hit_u * mesh_normals[hit_vertex_ids.y].xyz +
            hit_v * mesh_normals[hit_vertex_ids.z].xyz);
{{update_code}}
        if (store_triangle_hit_data) {
            triangle_hit_ids[3 * ray_index + 0] = hit_vertex_ids.x;
            triangle_hit_ids[3 * ray_index + 1] = hit_vertex_ids.y;
            triangle_hit_ids[3 * ray_index + 2] = hit_vertex_ids.z;
        }
    } else {
{{reset_code}}
        if (store_triangle_hit_data) {
            triangle_hit_ids[3 * ray_index + 0] = KD_NO_TRIANGLE;
            triangle_hit_ids[3 * ray_index + 1] = KD_NO_TRIANGLE;
            triangle_hit_ids[3 * ray_index + 2] = KD_NO_TRIANGLE;
        }
    }
}
`

const (
	defaultResetCode  = "        result[ray_index] = -1.0f;"
	defaultUpdateCode = "        result[ray_index] = hit_distance;"
)

var compiledKernelTemplate = fasttemplate.New(kernelTemplate, "{{", "}}")

// Render the traversal kernel for one executor variant.
func generateKernelSource(name string, v Variant, cfg ExecutorConfig) string {
	originParam := "float4                     ray_origin_value"
	originLoad := "ray_origin_value"
	if v == VariantBufferOrigin {
		originParam = "__global const float4*     ray_origins"
		originLoad = "ray_origins[ray_origin_stride_offset + ray_origin_index]"
	}

	return compiledKernelTemplate.ExecuteString(map[string]interface{}{
		"kernel_name":        name,
		"origin_param":       originParam,
		"origin_load":        originLoad,
		"ray_direction_code": orDefault(cfg.RayDirectionCode, ""),
		"reset_code":         orDefault(cfg.ResetCode, defaultResetCode),
		"update_code":        orDefault(cfg.UpdateCode, defaultUpdateCode),
	})
}

func orDefault(code, def string) string {
	if code == "" {
		return def
	}
	return fmt.Sprintf("        %s", code)
}
