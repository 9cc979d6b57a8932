package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Compile-time check that FileSystem implements Store.
var _ Store = (*FileSystem)(nil)

// metaSuffix names the sidecar file holding an object's HTTP metadata.
const metaSuffix = ".ckmeta"

const defaultListLimit = 1000

// FileSystem implements Store on the local filesystem. Each object lives at
// <basePath>/<key>, with a small JSON sidecar for content type and cache
// control. Writes are atomic (temp file + rename).
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a FileSystem store rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

type sidecar struct {
	ContentType  string `json:"contentType,omitempty"`
	CacheControl string `json:"cacheControl,omitempty"`
}

// objectPath maps a key to its on-disk path, rejecting traversal segments.
func (s *FileSystem) objectPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

func (s *FileSystem) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := writeAtomic(dir, path, data); err != nil {
		return err
	}

	meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, CacheControl: opts.CacheControl})
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", key, err)
	}
	return writeAtomic(dir, path+metaSuffix, meta)
}

// writeAtomic writes data to dst via a temp file in dir plus rename.
func writeAtomic(dir, dst string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}
	tmpPath = ""
	return nil
}

func (s *FileSystem) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("reading %s: %w", key, err)
	}
	info := s.loadInfo(key, path, int64(len(data)))
	return data, info, nil
}

func (s *FileSystem) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return s.loadInfo(key, path, st.Size()), nil
}

func (s *FileSystem) loadInfo(key, path string, size int64) *ObjectInfo {
	info := &ObjectInfo{Key: key, Size: size}
	raw, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		return info
	}
	var meta sidecar
	if json.Unmarshal(raw, &meta) == nil {
		info.ContentType = meta.ContentType
		info.CacheControl = meta.CacheControl
	}
	return info
}

func (s *FileSystem) Delete(ctx context.Context, key string) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	os.Remove(path + metaSuffix)
	return nil
}

func (s *FileSystem) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var keys []string
	root := s.basePath
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		if opts.Cursor != "" && key <= opts.Cursor {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing prefix %q: %w", opts.Prefix, err)
	}
	sort.Strings(keys)

	result := &ListResult{}
	for _, key := range keys {
		if len(result.Objects) == limit {
			result.Truncated = true
			result.Cursor = result.Objects[limit-1].Key
			break
		}
		path, _ := s.objectPath(key)
		size := int64(0)
		if st, err := os.Stat(path); err == nil {
			size = st.Size()
		}
		result.Objects = append(result.Objects, *s.loadInfo(key, path, size))
	}
	return result, nil
}
