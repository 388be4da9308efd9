package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/filex"
)

// LocalStore keeps blobs as files below a root directory.
type LocalStore struct {
	root   string
	prefix string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, prefix string) (*LocalStore, error) {
	if err := filex.EnsureDir(root); err != nil {
		return nil, err
	}
	return &LocalStore{root: root, prefix: prefix}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: bad blob ref %q", common.ErrBadRequest, ref)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Save(_ context.Context, data []byte, ext string) (string, error) {
	ref := NewKey(s.prefix, ext)
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return "", err
	}
	if err := filex.WriteFileAtomic(p, data, 0o640); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *LocalStore) Open(_ context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrNotFound
	}
	return data, err
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) URL(_ context.Context, ref string) (string, error) {
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
