package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SupabaseStorage talks to the Supabase Storage REST API with a service key.
type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewSupabaseStorage(supabaseURL, serviceKey string) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    strings.TrimRight(supabaseURL, "/") + "/storage/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *SupabaseStorage) objectURL(bucket, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, url.PathEscape(bucket), strings.Join(segments, "/"))
}

// do sends the request and maps Supabase's missing-object answers to
// ErrNotFound. It answers 400 "Object not found" as well as 404. On success
// the caller owns the body.
func (s *SupabaseStorage) do(ctx context.Context, method, bucket, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(bucket, path), body)
	if err != nil {
		return nil, fmt.Errorf("supabase %s request: %w", strings.ToLower(method), err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase %s %s/%s: %w", method, bucket, path, err)
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}

	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound ||
		(resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(msg)), "not found")) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
	}
	return nil, fmt.Errorf("supabase %s %s/%s failed (%d): %s", method, bucket, path, resp.StatusCode, strings.TrimSpace(string(msg)))
}

// Upload overwrites any existing object at path.
func (s *SupabaseStorage) Upload(ctx context.Context, bucket, path string, data io.Reader, contentType string) error {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("x-upsert", "true")
	resp, err := s.do(ctx, http.MethodPost, bucket, path, data, header)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (s *SupabaseStorage) Download(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, bucket, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete treats a missing object as already deleted.
func (s *SupabaseStorage) Delete(ctx context.Context, bucket, path string) error {
	resp, err := s.do(ctx, http.MethodDelete, bucket, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
