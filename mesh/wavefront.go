package mesh

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kbiElude/Emerald-sub008/asset"
	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// A position/normal index pair identifying a unique output vertex.
type vertexKey struct {
	position int
	normal   int
}

type wavefrontReader struct {
	logger log.Logger

	// Raw coordinate lists as they appear in the obj files.
	positionList []types.Vec3
	normalList   []types.Vec3

	// Unique output vertices.
	vertexIndex map[vertexKey]uint32
	vertices    []types.Vec3
	normals     []types.Vec3
	hasNormals  bool
	triangles   [][3]uint32

	// Provides additional error information when obj files include other
	// files via "call".
	errStack []string
}

// Read a mesh from a wavefront obj file or URL.
func ReadWavefront(path string) (*IndexedMesh, error) {
	res, err := asset.NewResource(path, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return ReadWavefrontResource(res)
}

// Read a mesh from a wavefront obj resource. Only geometry statements are
// interpreted ("v", "vn", "f", "call"); material and grouping statements are
// ignored. Polygonal faces are triangulated as fans.
func ReadWavefrontResource(res *asset.Resource) (*IndexedMesh, error) {
	r := &wavefrontReader{
		logger:      log.New("wavefront reader"),
		vertexIndex: make(map[vertexKey]uint32),
	}

	r.logger.Noticef(`parsing mesh from "%s"`, res.Path())
	start := time.Now()

	if err := r.parse(res); err != nil {
		return nil, err
	}

	// Faces without explicit normals leave zero normals behind; regenerate
	// every normal in that case so the mesh stays consistent.
	normals := r.normals
	if !r.hasNormals {
		normals = nil
	}

	m, err := NewIndexedMesh(res.Path(), r.vertices, normals, r.triangles)
	if err != nil {
		return nil, err
	}

	r.logger.Noticef(
		"parsed %d unique vertices and %d triangles in %d ms",
		len(r.vertices), len(r.triangles), time.Since(start).Nanoseconds()/1e6,
	)
	return m, nil
}

func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)
	return errors.New(strings.Trim(
		fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
		"\n",
	))
}

func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

func (r *wavefrontReader) parse(res *asset.Resource) error {
	lineNum := 0

	// Positive indices in included files are relative to the coordinates
	// defined before the include.
	relPositionOffset := len(r.positionList)
	relNormalOffset := len(r.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "call"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [call]", res.Path(), lineNum))
			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			err = r.parse(incRes)
			incRes.Close()
			if err != nil {
				return err
			}
			r.popFrame()
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.positionList = append(r.positionList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v.Normalize())
		case "f":
			if err := r.parseFace(lineTokens, relPositionOffset, relNormalOffset); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Parse a face and append its triangles. Face arguments have the form
// v, v/vt, v//vn or v/vt/vn.
func (r *wavefrontReader) parseFace(lineTokens []string, relPositionOffset, relNormalOffset int) error {
	if len(lineTokens) < 4 {
		return errors.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	indices := make([]uint32, 0, len(lineTokens)-1)
	for arg, token := range lineTokens[1:] {
		vTokens := strings.Split(token, "/")
		if vTokens[0] == "" {
			return errors.Errorf("face argument %d does not include a vertex index", arg)
		}

		key := vertexKey{normal: -1}
		var err error
		key.position, err = selectFaceCoordIndex(vTokens[0], len(r.positionList), relPositionOffset)
		if err != nil {
			return errors.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}

		if len(vTokens) > 2 && vTokens[2] != "" {
			key.normal, err = selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return errors.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			r.hasNormals = true
		}

		indices = append(indices, r.uniqueVertex(key))
	}

	for i := 1; i+1 < len(indices); i++ {
		r.triangles = append(r.triangles, [3]uint32{indices[0], indices[i], indices[i+1]})
	}
	return nil
}

func (r *wavefrontReader) uniqueVertex(key vertexKey) uint32 {
	if index, exists := r.vertexIndex[key]; exists {
		return index
	}

	index := uint32(len(r.vertices))
	r.vertexIndex[key] = index
	r.vertices = append(r.vertices, r.positionList[key.position])
	if key.normal >= 0 {
		r.normals = append(r.normals, r.normalList[key.normal])
	} else {
		r.normals = append(r.normals, types.Vec3{})
	}
	return index
}

// Given an index for a face coord type calculate the proper offset into the
// coord list. Negative indices reference elements from the end of the list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var offset int
	if index < 0 {
		offset = coordListLen + int(index)
	} else {
		offset = relOffset + int(index-1)
	}
	if offset < 0 || offset >= coordListLen {
		return -1, errors.New("index out of bounds")
	}
	return offset, nil
}

func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, errors.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
