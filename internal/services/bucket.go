package services

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// MediaUploader stores feedback images and returns a public URL.
type MediaUploader interface {
	Upload(fileName string, data []byte) (string, error)
}

// BucketService uploads images to a Supabase Storage bucket over its REST
// API and derives the public URL the dashboard renders.
type BucketService struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *http.Client
}

// NewBucketService creates a Supabase Storage client
func NewBucketService() (*BucketService, error) {
	baseURL := strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	apiKey := os.Getenv("SUPABASE_SERVICE_KEY")

	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("missing Supabase credentials in environment variables")
	}

	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "feedback-images"
	}

	return &BucketService{
		baseURL: baseURL,
		apiKey:  apiKey,
		bucket:  bucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Upload writes the image into the bucket and returns its public URL.
func (b *BucketService) Upload(fileName string, data []byte) (string, error) {
	log.Printf("Uploading file %s to bucket %s", fileName, b.bucket)

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.baseURL, b.bucket, fileName)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "false")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage upload failed: %d: %s", resp.StatusCode, detail)
	}

	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.baseURL, b.bucket, fileName)
	log.Printf("File uploaded, public URL: %s", publicURL)
	return publicURL, nil
}
