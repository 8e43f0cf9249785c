// Package blobs keeps attachment payloads on the local filesystem until they
// are uploaded. Payloads are addressed by their BLAKE2b-256 digest and laid
// out as <root>/<d[0:2]>/<d[2:4]>/<d>, so identical files are stored once.
package blobs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/cryptox"
	"github.com/dmitrijs2005/offsync/internal/filex"
)

type Store struct {
	root string
}

// NewStore prepares the payload directory.
func NewStore(root string) (*Store, error) {
	dir, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: dir}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) path(ref string) (string, error) {
	if !cryptox.ValidDigest(ref) {
		return "", fmt.Errorf("invalid blob ref %q", ref)
	}
	return filepath.Join(s.root, ref[0:2], ref[2:4], ref), nil
}

// Put copies r into the store and returns its reference and size. The
// payload becomes visible under its final name only once fully written.
func (s *Store) Put(r io.Reader) (ref string, size int64, err error) {
	tmp, err := os.CreateTemp(s.root, "incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	h := cryptox.NewHasher()
	size, err = io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to write payload: %w", err)
	}

	ref = fmt.Sprintf("%x", h.Sum(nil))
	dst, err := s.path(ref)
	if err != nil {
		return "", 0, err
	}

	exists, err := filex.Exists(dst)
	if err != nil {
		return "", 0, err
	}
	if exists {
		_ = os.Remove(tmp.Name())
		return ref, size, nil
	}
	if err := filex.MoveInto(tmp.Name(), dst); err != nil {
		return "", 0, err
	}
	return ref, size, nil
}

// Open returns the payload for ref, or common.ErrNotFound.
func (s *Store) Open(ref string) (*os.File, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s: %w", ref, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", ref, err)
	}
	return f, nil
}

// Has reports whether the payload for ref is present.
func (s *Store) Has(ref string) (bool, error) {
	p, err := s.path(ref)
	if err != nil {
		return false, err
	}
	return filex.Exists(p)
}

// Delete removes the payload. Missing payloads are ignored, and the shard
// directories are pruned when they become empty.
func (s *Store) Delete(ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", ref, err)
	}

	dir := filepath.Dir(p)
	_ = os.Remove(dir)
	_ = os.Remove(filepath.Dir(dir))
	return nil
}
