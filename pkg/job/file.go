package job

import (
	"strings"

	"github.com/meridian-sim/meridian/pkg/failure"
)

// DataFile is an identifier plus a size in bytes. Files are immutable once
// created; the simulation-wide registry enforces id uniqueness.
type DataFile struct {
	id   string
	size float64
}

// NewDataFile builds a file. Uniqueness is the registry's concern.
func NewDataFile(id string, size float64) (*DataFile, error) {
	if id == "" {
		return nil, failure.NewInvalidArgument("empty file id")
	}
	if size < 0 {
		return nil, failure.NewInvalidArgument("file %q: negative size %g", id, size)
	}
	return &DataFile{id: id, size: size}, nil
}

// ID returns the file identifier.
func (f *DataFile) ID() string { return f.id }

// Size returns the file size in bytes.
func (f *DataFile) Size() float64 { return f.size }

// StorageProvider is the view file locations hold of a storage service: a
// name and the commport name requests go to. The concrete service lives in
// pkg/service/storage; the job model never owns it.
type StorageProvider interface {
	Name() string
	RequestPortName() string
}

// FileLocation names a directory on a storage service, optionally reached
// through a proxy service. It is a value; it owns neither service.
type FileLocation struct {
	Service StorageProvider
	Proxy   StorageProvider // nil unless the location is proxied
	Path    string          // sanitized absolute path
}

// Location builds a file location on a storage service.
func Location(ss StorageProvider, path string) (*FileLocation, error) {
	if ss == nil {
		return nil, failure.NewInvalidArgument("nil storage service in location")
	}
	clean, err := SanitizePath(path)
	if err != nil {
		return nil, err
	}
	return &FileLocation{Service: ss, Path: clean}, nil
}

// ProxiedLocation builds a location on a storage service reached through a
// proxy. The target service's path is kept verbatim past sanitization; the
// core never canonicalizes on behalf of the proxy.
func ProxiedLocation(proxy, ss StorageProvider, path string) (*FileLocation, error) {
	if proxy == nil {
		return nil, failure.NewInvalidArgument("nil proxy service in location")
	}
	loc, err := Location(ss, path)
	if err != nil {
		return nil, err
	}
	loc.Proxy = proxy
	return loc, nil
}

// String renders "service:path" or "proxy->service:path".
func (l *FileLocation) String() string {
	if l.Proxy != nil {
		return l.Proxy.Name() + "->" + l.Service.Name() + ":" + l.Path
	}
	return l.Service.Name() + ":" + l.Path
}

var forbiddenPathCharacters = []string{"\\", " ", "~", "`", "\"", "&", "*", "?"}

// SanitizePath validates and normalizes an absolute path: "./" and empty
// segments are stripped, ".." pops one segment (underflow is an
// InvalidArgument), a closed set of characters is disallowed, and the
// result is always "/"-terminated.
func SanitizePath(path string) (string, error) {
	if path == "" {
		return "", failure.NewInvalidArgument("path cannot be empty")
	}
	if path[0] != '/' {
		return "", failure.NewInvalidArgument("path %q is not absolute", path)
	}
	for _, c := range forbiddenPathCharacters {
		if strings.Contains(path, c) {
			return "", failure.NewInvalidArgument("character %q not allowed in path %q", c, path)
		}
	}

	var kept []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
			// dropped
		case "..":
			if len(kept) == 0 {
				return "", failure.NewInvalidArgument("path %q escapes the root", path)
			}
			kept = kept[:len(kept)-1]
		default:
			kept = append(kept, seg)
		}
	}

	if len(kept) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(kept, "/") + "/", nil
}
