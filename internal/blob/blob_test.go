package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAllWithLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = ReadAllWithLimit(strings.NewReader("hello!"), 5)
	assert.True(t, errors.Is(err, ErrTooLarge))

	_, err = ReadAllWithLimit(nil, 5)
	assert.Error(t, err)

	_, err = ReadAllWithLimit(strings.NewReader("x"), 0)
	assert.Error(t, err)
}

func TestFSStore_PutAndPublicURL(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, "http://localhost:8080/media/")
	require.NoError(t, err)

	key := "user-1/1700000000000_ABC.jpg"
	require.NoError(t, s.Put(context.Background(), key, bytes.NewReader([]byte("jpeg")), "image/jpeg"))

	got, err := os.ReadFile(filepath.Join(root, "user-1", "1700000000000_ABC.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(got))
	assert.Equal(t, "http://localhost:8080/media/user-1/1700000000000_ABC.jpg", s.PublicURL(key))

	entries, err := os.ReadDir(filepath.Join(root, "user-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFSStore_RejectsUnsafeKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	for _, key := range []string{"../escape.jpg", "/abs/file.jpg", "noowner.jpg", "user/../../x.jpg", "user/"} {
		err := s.Put(context.Background(), key, strings.NewReader("x"), "")
		assert.Error(t, err, key)
	}
}

func TestFSStore_Handler(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "u/a.txt", strings.NewReader("body"), "text/plain"))

	srv := httptest.NewServer(http.StripPrefix("/media", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/media/u/a.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body", string(body))
}

func TestHTTPStore_Put(t *testing.T) {
	var (
		path        string
		auth        string
		contentType string
		body        []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL+"/", "whatsapp-media", "tok", time.Second)
	err := s.Put(context.Background(), "user-1/1_ID.ogg", strings.NewReader("opus"), "audio/ogg")
	require.NoError(t, err)

	assert.Equal(t, "/object/whatsapp-media/user-1/1_ID.ogg", path)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "audio/ogg", contentType)
	assert.Equal(t, "opus", string(body))
	assert.Equal(t, srv.URL+"/object/public/whatsapp-media/user-1/1_ID.ogg", s.PublicURL("user-1/1_ID.ogg"))
}

func TestHTTPStore_PutErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer srv.Close()

	err := NewHTTPStore(srv.URL, "b", "", time.Second).Put(context.Background(), "u/x", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "denied")
}
