package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

const graphBaseURL = "https://graph.facebook.com/v22.0"

// Messenger is the outbound surface the conversation engine depends on.
type Messenger interface {
	SendText(to, body string) error
	SendTemplate(to, templateName string) error
	Notify(from, name, membershipNumber string)
	GetMediaURL(mediaID string) (string, error)
	DownloadMedia(url string) ([]byte, error)
}

// Media fetch failure modes surfaced to callers.
var (
	ErrMediaNotFound  = errors.New("media not found, it may have expired")
	ErrAuthExpired    = errors.New("access token is invalid or expired")
	ErrRequestTimeout = errors.New("request timed out")
)

// RetryPolicy bounds the media download retry loop.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// LinearBackoff waits attempt x unit between tries.
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// DefaultRetryPolicy retries media downloads 3 times with 1s, 2s waits.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Backoff:     LinearBackoff(time.Second),
}

// WhatsAppService sends and fetches messages through the Meta Cloud API
type WhatsAppService struct {
	token         string
	phoneNumberID string
	baseURL       string
	metaClient    *http.Client // media metadata lookups
	mediaClient   *http.Client // binary downloads
	retry         RetryPolicy
	operators     []string
}

// NewWhatsAppService creates a new WhatsApp Cloud API client
func NewWhatsAppService() (*WhatsAppService, error) {
	token := os.Getenv("WHATSAPP_TOKEN")
	phoneNumberID := os.Getenv("PHONE_NUMBER_ID")

	if token == "" || phoneNumberID == "" {
		return nil, fmt.Errorf("missing WhatsApp credentials in environment variables")
	}

	var operators []string
	for _, phone := range strings.Split(os.Getenv("OPERATOR_RECIPIENTS"), ",") {
		phone = strings.TrimSpace(phone)
		if phone != "" {
			operators = append(operators, phone)
		}
	}

	return &WhatsAppService{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       graphBaseURL,
		metaClient:    &http.Client{Timeout: 5 * time.Second},
		mediaClient:   &http.Client{Timeout: 30 * time.Second},
		retry:         DefaultRetryPolicy,
		operators:     operators,
	}, nil
}

// SendText sends a plain WhatsApp text message. Failures are logged, not
// surfaced - the webhook path never blocks on outbound delivery.
func (w *WhatsAppService) SendText(to, body string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}

	if err := w.postMessage(payload); err != nil {
		log.Printf("Error sending text to %s: %v", to, err)
		return err
	}
	return nil
}

// SendTemplate sends a pre-approved WhatsApp template message by name.
func (w *WhatsAppService) SendTemplate(to, templateName string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     templateName,
			"language": map[string]string{"code": "en"},
		},
	}

	if err := w.postMessage(payload); err != nil {
		log.Printf("Error sending template %s to %s: %v", templateName, to, err)
		return err
	}
	return nil
}

// Notify broadcasts a new-feedback alert to the operator list. Best effort:
// a failed operator send never affects the member-facing path.
func (w *WhatsAppService) Notify(from, name, membershipNumber string) {
	if len(w.operators) == 0 {
		return
	}

	text := fmt.Sprintf("New feedback recieved:\nFrom: %s\nName: %s\nMembership No: %s",
		from, name, membershipNumber)

	for _, to := range w.operators {
		if err := w.SendText(to, text); err != nil {
			log.Printf("Failed to notify operator %s: %v", to, err)
		}
	}
}

func (w *WhatsAppService) postMessage(payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID),
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.metaClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph API returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// GetMediaURL exchanges a media ID for a short-lived download URL.
func (w *WhatsAppService) GetMediaURL(mediaID string) (string, error) {
	log.Printf("Fetching media URL for ID: %s", mediaID)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", w.baseURL, mediaID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.metaClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("fetching media URL: %w", ErrRequestTimeout)
		}
		return "", fmt.Errorf("unable to fetch media URL: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return "", ErrAuthExpired
	case http.StatusNotFound:
		return "", ErrMediaNotFound
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unable to fetch media URL: graph API returned %d", resp.StatusCode)
	}

	var data struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("unable to fetch media URL: %w", err)
	}
	if data.URL == "" {
		return "", fmt.Errorf("no URL found in media response")
	}
	return data.URL, nil
}

// DownloadMedia fetches the media binary, retrying per the service's policy.
func (w *WhatsAppService) DownloadMedia(url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		log.Printf("Downloading media (attempt %d/%d)", attempt, w.retry.MaxAttempts)

		data, err := w.downloadOnce(url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		log.Printf("Download attempt %d failed: %v", attempt, err)

		if attempt < w.retry.MaxAttempts {
			time.Sleep(w.retry.Backoff(attempt))
		}
	}

	return nil, fmt.Errorf("failed to download media after %d attempts: %w", w.retry.MaxAttempts, lastErr)
}

func (w *WhatsAppService) downloadOnce(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.mediaClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media host returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
