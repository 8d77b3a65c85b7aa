package services

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testBucketService(baseURL string) *BucketService {
	return &BucketService{
		baseURL: baseURL,
		apiKey:  "service-key",
		bucket:  "feedback-images",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestUpload_ReturnsPublicURL(t *testing.T) {
	var gotPath, gotAuth, gotUpsert string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := testBucketService(server.URL)
	publicURL, err := service.Upload("feedback_919900001111_1748772000000.jpg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	wantPath := "/storage/v1/object/feedback-images/feedback_919900001111_1748772000000.jpg"
	if gotPath != wantPath {
		t.Errorf("path = %q, want %q", gotPath, wantPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("auth = %q, want bearer key", gotAuth)
	}
	if gotUpsert != "false" {
		t.Errorf("x-upsert = %q, want false", gotUpsert)
	}
	if string(gotBody) != "jpeg-bytes" {
		t.Errorf("body = %q, want raw image bytes", gotBody)
	}

	wantURL := server.URL + "/storage/v1/object/public/feedback-images/feedback_919900001111_1748772000000.jpg"
	if publicURL != wantURL {
		t.Errorf("public URL = %q, want %q", publicURL, wantURL)
	}
}

func TestUpload_SurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": "Duplicate"}`))
	}))
	defer server.Close()

	service := testBucketService(server.URL)
	_, err := service.Upload("dup.jpg", []byte("x"))
	if err == nil {
		t.Fatal("expected upload error")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("err = %q, want status code in message", err)
	}
}
