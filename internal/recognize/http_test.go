package recognize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testCrop() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

func testClient(url string) *HTTPClient {
	return NewHTTPClient(HTTPConfig{
		BaseURL:    url,
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryWait:  time.Millisecond,
	})
}

func TestHTTPRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recognize" {
			t.Errorf("path = %q, want /recognize", r.URL.Path)
		}
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if _, err := base64.StdEncoding.DecodeString(req.Image); err != nil {
			t.Errorf("image is not valid base64: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"lines": []map[string]any{
				{"text": "Arjun Textiles", "y_center": 12.5},
				{"text": "Surat, Gujarat", "y_center": 30.0},
			},
		})
	}))
	defer srv.Close()

	lines, err := testClient(srv.URL).Recognize(context.Background(), testCrop())
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	want := []Line{
		{Text: "Arjun Textiles", YCenter: 12.5},
		{Text: "Surat, Gujarat", YCenter: 30},
	}
	if len(lines) != 2 || lines[0] != want[0] || lines[1] != want[1] {
		t.Errorf("lines = %+v, want %+v", lines, want)
	}
}

func TestHTTPRecognizeEmptyCrop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"lines": []any{}})
	}))
	defer srv.Close()

	lines, err := testClient(srv.URL).Recognize(context.Background(), testCrop())
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("lines = %+v, want none", lines)
	}
}

func TestHTTPRecognizeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"lines": []map[string]any{{"text": "500000", "y_center": 8.0}},
		})
	}))
	defer srv.Close()

	lines, err := testClient(srv.URL).Recognize(context.Background(), testCrop())
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(lines) != 1 || lines[0].Text != "500000" {
		t.Errorf("lines = %+v", lines)
	}
}

func TestHTTPRecognizeExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Recognize(context.Background(), testCrop())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want wrapping ErrUnavailable", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPRecognizeBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported image", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Recognize(context.Background(), testCrop())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, a client error must not look transient", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestHTTPRecognizeUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).Recognize(context.Background(), testCrop())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want wrapping ErrUnavailable", err)
	}
}
