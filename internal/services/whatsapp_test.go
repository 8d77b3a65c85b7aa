package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testWhatsAppService points the client at a stub server with instant retries.
func testWhatsAppService(baseURL string) *WhatsAppService {
	return &WhatsAppService{
		token:         "test-token",
		phoneNumberID: "12345",
		baseURL:       baseURL,
		metaClient:    &http.Client{Timeout: 5 * time.Second},
		mediaClient:   &http.Client{Timeout: 5 * time.Second},
		retry: RetryPolicy{
			MaxAttempts: 3,
			Backoff:     func(int) time.Duration { return 0 },
		},
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(time.Second)

	if got := backoff(1); got != time.Second {
		t.Errorf("backoff(1) = %v, want 1s", got)
	}
	if got := backoff(2); got != 2*time.Second {
		t.Errorf("backoff(2) = %v, want 2s", got)
	}
}

func TestSendText_PostsToMessagesEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	if err := service.SendText("919900001111", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if gotPath != "/12345/messages" {
		t.Errorf("path = %q, want %q", gotPath, "/12345/messages")
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q, want bearer token", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" || gotBody["to"] != "919900001111" {
		t.Errorf("body = %v, want whatsapp message to 919900001111", gotBody)
	}
}

func TestSendTemplate_IncludesNameAndLanguage(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	if err := service.SendTemplate("919900001111", "optin"); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}

	tmpl, ok := gotBody["template"].(map[string]interface{})
	if !ok {
		t.Fatalf("body = %v, want template object", gotBody)
	}
	if tmpl["name"] != "optin" {
		t.Errorf("template name = %v, want optin", tmpl["name"])
	}
	lang, _ := tmpl["language"].(map[string]interface{})
	if lang["code"] != "en" {
		t.Errorf("language = %v, want en", lang)
	}
}

func TestGetMediaURL_ReturnsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/MEDIA123" {
			t.Errorf("path = %q, want /MEDIA123", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://lookaside.example/abc"})
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	url, err := service.GetMediaURL("MEDIA123")
	if err != nil {
		t.Fatalf("GetMediaURL: %v", err)
	}
	if url != "https://lookaside.example/abc" {
		t.Errorf("url = %q, want lookaside URL", url)
	}
}

func TestGetMediaURL_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	_, err := service.GetMediaURL("GONE")
	if !errors.Is(err, ErrMediaNotFound) {
		t.Errorf("err = %v, want ErrMediaNotFound", err)
	}
}

func TestGetMediaURL_AuthExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	_, err := service.GetMediaURL("MEDIA123")
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("err = %v, want ErrAuthExpired", err)
	}
}

func TestDownloadMedia_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	data, err := service.DownloadMedia(server.URL)
	if err != nil {
		t.Fatalf("DownloadMedia: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("data = %q, want jpeg-bytes", data)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDownloadMedia_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	service := testWhatsAppService(server.URL)
	_, err := service.DownloadMedia(server.URL)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err = %q, want attempt count in message", err)
	}
}
