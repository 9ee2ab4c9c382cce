package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FSStore writes blobs below a root directory and serves them under publicURL.
type FSStore struct {
	root      string
	publicURL string
}

func NewFSStore(root, publicURL string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	return &FSStore{root: abs, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	// Write to a temp file first so readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *FSStore) PublicURL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(filepath.ToSlash(filepath.Clean(key)), "/")
}

// Handler serves stored blobs; mount it with http.StripPrefix.
func (s *FSStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.root))
}

// path converts a key of the form "<owner>/<name>" into a file below root.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}
	idx := strings.IndexByte(clean, filepath.Separator)
	if idx <= 0 || strings.TrimSpace(clean[idx+1:]) == "" {
		return "", fmt.Errorf("storage key must contain owner prefix: %s", key)
	}
	joined := filepath.Join(s.root, clean)
	if !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes blob root: %s", key)
	}
	return joined, nil
}
