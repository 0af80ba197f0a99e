package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "documents", "u1/notes.txt", strings.NewReader("cells"), "text/plain"))

	data, err := ReadAll(ctx, s, "documents", "u1/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "cells", string(data))

	require.NoError(t, s.Delete(ctx, "documents", "u1/notes.txt"))
	_, err = s.Download(ctx, "documents", "u1/notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "documents", "u1/notes.txt"), "deleting a missing object is fine")
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = s.Upload(context.Background(), "documents", "../../etc/passwd", strings.NewReader("x"), "")
	assert.Error(t, err)
}

func TestSupabaseStorage(t *testing.T) {
	objects := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			body, _ := io.ReadAll(r.Body)
			objects[key] = string(body)
		case http.MethodGet, http.MethodDelete:
			v, ok := objects[key]
			if !ok {
				http.Error(w, `{"error":"Object not found"}`, http.StatusBadRequest)
				return
			}
			if r.Method == http.MethodDelete {
				delete(objects, key)
				return
			}
			_, _ = w.Write([]byte(v))
		}
	}))
	defer srv.Close()

	s := NewSupabaseStorage(srv.URL+"/", "key")
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "documents", "u1/a.pdf", strings.NewReader("%PDF"), "application/pdf"))
	data, err := ReadAll(ctx, s, "documents", "u1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = s.Download(ctx, "documents", "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "documents", "u1/a.pdf"))
	assert.NoError(t, s.Delete(ctx, "documents", "u1/a.pdf"), "deleting a missing object is fine")
	assert.Empty(t, objects)
}

func TestSupabaseStorage_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket quota exceeded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSupabaseStorage(srv.URL, "key")
	err := s.Upload(context.Background(), "documents", "a.txt", strings.NewReader("x"), "text/plain")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "bucket quota exceeded")
}
