package objstore

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Local is a Store backed by a directory. Keys map to paths below Root.
type Local struct {
	Root string
}

// NewLocal returns a Local store rooted at dir.
func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "."
	}
	return &Local{Root: filepath.Clean(dir)}
}

// URL implements Store.
func (l *Local) URL() string { return l.Root }

func (l *Local) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

// Ping creates the root if needed and checks that it is a directory.
func (l *Local) Ping(ctx context.Context) error {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return errors.Wrapf(err, "local store %s", l.Root)
	}
	st, err := os.Stat(l.Root)
	if err != nil {
		return errors.Wrapf(err, "local store %s", l.Root)
	}
	if !st.IsDir() {
		return errors.Newf("local store %s is not a directory", l.Root)
	}
	return nil
}

// List walks the directory holding prefix and returns matching file keys.
// Temporary files left by an interrupted Put are skipped.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	start := l.Root
	if d := prefix[:strings.LastIndex(prefix, "/")+1]; d != "" {
		start = l.path(d)
	}
	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(l.Root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", start)
	}
	sort.Strings(keys)
	return keys, nil
}

// Glob implements Store.
func (l *Local) Glob(ctx context.Context, pattern string) ([]string, error) {
	return globVia(ctx, l, pattern)
}

// Open implements Store.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "open %s", key)
		}
		return nil, errors.Wrapf(err, "open %s", key)
	}
	return f, nil
}

// Put writes to a temporary file next to the target and renames it into
// place, so readers never observe a partial object.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) error {
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "put %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// Delete implements Store and prunes directories left empty below the root.
func (l *Local) Delete(ctx context.Context, keys []string) error {
	dirs := map[string]struct{}{}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := l.path(k)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "delete %s", k)
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for d := range dirs {
		l.pruneEmpty(d)
	}
	return nil
}

// pruneEmpty removes dir and its empty parents up to (excluding) the root.
func (l *Local) pruneEmpty(dir string) {
	for {
		rel, err := filepath.Rel(l.Root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
