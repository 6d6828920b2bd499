// Package blob abstracts where the flat table lives.
//
// A location is either a plain filesystem path (or file:// URL) or a URL
// whose scheme selects a registered backend, e.g. s3://bucket/key. Backends
// register themselves from init() in their own package; import
// sleepgen/internal/blob/all to link every backend in.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned (wrapped) by Get when the object does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store reads and replaces whole objects.
//
// Put must be all-or-nothing: after a failed Put the previous object (if
// any) is still intact.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Factory opens a Store for a parsed location.
type Factory func(ctx context.Context, loc Location) (Store, error)

// Location is a parsed table location.
type Location struct {
	Scheme string // "file", "s3", ...
	Bucket string // host part for object stores; empty for files
	Key    string // file path or object key
	Raw    string
}

func (l Location) String() string { return l.Raw }

// Same reports whether two locations address the same object. File keys
// are compared after filepath.Clean.
func (l Location) Same(o Location) bool {
	if l.Scheme != o.Scheme || l.Bucket != o.Bucket {
		return false
	}
	if l.Scheme == "file" {
		return filepath.Clean(l.Key) == filepath.Clean(o.Key)
	}
	return l.Key == o.Key
}

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under scheme.
//
// Panics if scheme is empty, f is nil, or scheme is already registered.
func Register(scheme string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if scheme == "" {
		panic("blob: Register called with empty scheme")
	}
	if f == nil {
		panic("blob: Register called with nil factory")
	}
	if _, exists := factories[scheme]; exists {
		panic(fmt.Sprintf("blob: factory already registered for scheme=%q", scheme))
	}
	factories[scheme] = f
}

// Parse splits raw into a Location. Anything without a "scheme://" prefix
// is a filesystem path.
func Parse(raw string) (Location, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Location{}, fmt.Errorf("blob: empty location")
	}
	if !strings.Contains(s, "://") {
		return Location{Scheme: "file", Key: s, Raw: raw}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return Location{}, fmt.Errorf("blob: parse %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "file" {
		return Location{Scheme: "file", Key: u.Host + u.Path, Raw: raw}, nil
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("blob: %q must look like %s://bucket/key", raw, scheme)
	}
	return Location{Scheme: scheme, Bucket: u.Host, Key: key, Raw: raw}, nil
}

// Open parses raw and opens the Store registered for its scheme.
func Open(ctx context.Context, raw string) (Store, Location, error) {
	loc, err := Parse(raw)
	if err != nil {
		return nil, Location{}, err
	}

	mu.RLock()
	f := factories[loc.Scheme]
	mu.RUnlock()

	if f == nil {
		return nil, loc, fmt.Errorf("blob: unsupported scheme %q", loc.Scheme)
	}
	st, err := f(ctx, loc)
	if err != nil {
		return nil, loc, err
	}
	return st, loc, nil
}
