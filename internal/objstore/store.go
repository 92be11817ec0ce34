// Package objstore abstracts the flat key space the job reads from and writes
// to. Keys are slash separated and relative to the root a Store was opened at,
// so the same table layout works on a local directory and on an S3 bucket.
//
// Two implementations exist:
//
//   - Local: a directory on disk (plain paths and file:// URLs).
//   - S3:    a bucket and optional key prefix (s3://, s3a:// and s3n:// URLs).
//
// Globs are evaluated against keys with github.com/mattn/go-zglob semantics:
// "*" and "?" stay inside one segment, "{a,b}" is an alternation and "**"
// crosses segments.
package objstore

import (
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-zglob"
)

// ErrNotFound is returned by Open when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a minimal object store.
type Store interface {
	// URL returns the root this store was opened at, for logs.
	URL() string

	// Ping verifies the root is reachable.
	Ping(ctx context.Context) error

	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Glob returns every key matching pattern, sorted.
	Glob(ctx context.Context, pattern string) ([]string, error)

	// Open streams the object at key. The caller closes the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores the content of r at key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys []string) error
}

// Location is a parsed store root.
type Location struct {
	// Scheme is "s3" for any of the S3 URL flavours, "file" otherwise.
	Scheme string
	// Bucket is set for S3 locations.
	Bucket string
	// Prefix is the key prefix under the bucket (S3) or the directory (file),
	// without a trailing slash.
	Prefix string
}

// IsS3 reports whether the location points to S3.
func (l Location) IsS3() bool { return l.Scheme == "s3" }

// ParseLocation parses a root URL. s3://, s3a:// and s3n:// all map to S3;
// file:// URLs and anything without a scheme map to a local directory.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("empty store root")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: "file", Prefix: localDir(raw)}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errors.Wrapf(err, "parse store root %q", raw)
	}
	switch u.Scheme {
	case "s3", "s3a", "s3n":
		if u.Host == "" {
			return Location{}, errors.Newf("store root %q has no bucket", raw)
		}
		return Location{
			Scheme: "s3",
			Bucket: u.Host,
			Prefix: strings.Trim(u.Path, "/"),
		}, nil
	case "file":
		p := u.Path
		if u.Host != "" {
			p = u.Host + p
		}
		return Location{Scheme: "file", Prefix: localDir(p)}, nil
	default:
		return Location{}, errors.Newf("unsupported store scheme %q", u.Scheme)
	}
}

func localDir(p string) string {
	if d := strings.TrimRight(p, "/"); d != "" {
		return d
	}
	return "/"
}

// Open returns the Store for a root URL. S3 roots are built with opts.
func Open(raw string, opts S3Options) (Store, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	if loc.IsS3() {
		return NewS3(loc, opts)
	}
	return NewLocal(loc.Prefix), nil
}

// Join joins key parts with "/" and cleans the result. It never returns a
// leading slash.
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}

// staticPrefix returns the longest directory prefix of pattern that contains
// no glob metacharacters. Listing under it narrows the key space before
// matching.
func staticPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return pattern
	}
	j := strings.LastIndex(pattern[:i], "/")
	if j < 0 {
		return ""
	}
	return pattern[:j+1]
}

// matchKeys filters keys through a zglob pattern. The result keeps the input
// order.
func matchKeys(keys []string, pattern string) ([]string, error) {
	var out []string
	for _, k := range keys {
		ok, err := zglob.Match(pattern, k)
		if err != nil {
			return nil, errors.Wrapf(err, "match %q", pattern)
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// globVia implements Glob in terms of List for any store.
func globVia(ctx context.Context, s Store, pattern string) ([]string, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	keys, err := s.List(ctx, staticPrefix(pattern))
	if err != nil {
		return nil, err
	}
	out, err := matchKeys(keys, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
