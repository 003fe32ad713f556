package asset

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// A Resource is a mesh input stream read from disk or fetched over http(s).
type Resource struct {
	io.ReadCloser
	location *url.URL
}

// The file path or URL the resource was opened from.
func (r *Resource) Path() string {
	return r.location.String()
}

func (r *Resource) IsRemote() bool {
	return r.location.Scheme != ""
}

// Open a resource. A relative location is looked up next to relTo when
// relTo is not nil, so included mesh files resolve against the file that
// references them. The caller must close the returned resource.
func NewResource(location string, relTo *Resource) (*Resource, error) {
	target, err := resolveLocation(location, relTo)
	if err != nil {
		return nil, err
	}

	var body io.ReadCloser
	switch target.Scheme {
	case "":
		body, err = os.Open(target.Path)
	case "http", "https":
		body, err = fetch(target)
	default:
		err = errors.Errorf("asset: unsupported scheme '%s'", target.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return &Resource{ReadCloser: body, location: target}, nil
}

// Wrap an in-memory stream as a resource.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	location, err := url.Parse(name)
	if err != nil {
		location = &url.URL{Path: name}
	}
	return &Resource{ReadCloser: io.NopCloser(source), location: location}
}

func resolveLocation(location string, relTo *Resource) (*url.URL, error) {
	target, err := url.Parse(strings.ReplaceAll(location, `\`, `/`))
	if err != nil {
		return nil, errors.Wrapf(err, "asset: invalid location %q", location)
	}
	if target.Scheme != "" {
		return target, nil
	}
	if relTo == nil || filepath.IsAbs(target.Path) {
		target.Path = filepath.Clean(target.Path)
		return target, nil
	}

	if relTo.IsRemote() {
		return relTo.location.ResolveReference(target), nil
	}

	base, err := filepath.Abs(relTo.location.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "asset: could not resolve %s", relTo.Path())
	}
	return &url.URL{Path: filepath.Join(filepath.Dir(base), target.Path)}, nil
}

func fetch(target *url.URL) (io.ReadCloser, error) {
	resp, err := http.Get(target.String())
	if err != nil {
		return nil, errors.Wrapf(err, "asset: could not fetch '%s'", target)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, errors.Errorf("asset: could not fetch '%s': status %d", target, resp.StatusCode)
	}
	return resp.Body, nil
}
