package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benaresclub/feedback-backend/internal/models"
	"github.com/benaresclub/feedback-backend/internal/storage"
)

type sentText struct {
	to   string
	body string
}

type fakeMessenger struct {
	texts         []sentText
	templates     []sentText // body holds the template name
	notified      []string
	mediaURL      string
	mediaURLErr   error
	mediaData     []byte
	downloadErr   error
	downloadCalls int
}

func (f *fakeMessenger) SendText(to, body string) error {
	f.texts = append(f.texts, sentText{to: to, body: body})
	return nil
}

func (f *fakeMessenger) SendTemplate(to, templateName string) error {
	f.templates = append(f.templates, sentText{to: to, body: templateName})
	return nil
}

func (f *fakeMessenger) Notify(from, name, membershipNumber string) {
	f.notified = append(f.notified, from)
}

func (f *fakeMessenger) GetMediaURL(mediaID string) (string, error) {
	return f.mediaURL, f.mediaURLErr
}

func (f *fakeMessenger) DownloadMedia(url string) ([]byte, error) {
	f.downloadCalls++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.mediaData, nil
}

func (f *fakeMessenger) lastText() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1].body
}

func (f *fakeMessenger) lastTemplate() string {
	if len(f.templates) == 0 {
		return ""
	}
	return f.templates[len(f.templates)-1].body
}

type fakeUploader struct {
	uploads []string
	url     string
	err     error
}

func (f *fakeUploader) Upload(fileName string, data []byte) (string, error) {
	f.uploads = append(f.uploads, fileName)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// engineHarness wires the conversation engine to in-memory fakes with a
// controllable clock.
type engineHarness struct {
	engine   *ConversationService
	sessions *MemorySessionStore
	store    *storage.MemoryStore
	msgr     *fakeMessenger
	uploader *fakeUploader
	clock    time.Time
}

func newHarness() *engineHarness {
	h := &engineHarness{
		sessions: NewMemorySessionStore(10 * time.Minute),
		store:    storage.NewMemoryStore(),
		msgr: &fakeMessenger{
			mediaURL:  "https://lookaside.example/media/abc",
			mediaData: []byte("jpeg-bytes"),
		},
		uploader: &fakeUploader{url: "https://bucket.example/feedback_1.jpg"},
		clock:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	h.engine = NewConversationService(h.sessions, h.store, h.msgr, h.uploader)
	h.engine.now = func() time.Time { return h.clock }
	return h
}

// send advances the clock past the debounce window and delivers one message.
func (h *engineHarness) send(t *testing.T, msg *IncomingMessage) {
	t.Helper()
	h.clock = h.clock.Add(2 * time.Second)
	if err := h.engine.HandleMessage(msg); err != nil {
		t.Fatalf("HandleMessage(%+v) returned error: %v", msg, err)
	}
}

func (h *engineHarness) optIn(phone string) {
	_ = h.store.SetOptinStatus(phone, models.OptinYes)
}

func text(from, body string) *IncomingMessage {
	return &IncomingMessage{From: from, Type: "text", Text: body}
}

func button(from, payload string) *IncomingMessage {
	return &IncomingMessage{From: from, Type: "button", ButtonPayload: payload}
}

func image(from, mediaID, caption string) *IncomingMessage {
	return &IncomingMessage{From: from, Type: "image", MediaID: mediaID, Caption: caption}
}

// runToImagePrompt walks an opted-in sender through the flow up to the
// image_upload template.
func (h *engineHarness) runToImagePrompt(t *testing.T, phone string) {
	t.Helper()
	h.optIn(phone)
	h.send(t, text(phone, "hello"))
	h.send(t, text(phone, "Asha Verma"))
	h.send(t, text(phone, "MB-2041"))
	h.send(t, button(phone, models.CategoryUpkeep))
	h.send(t, text(phone, "Broken bench near the tennis court"))
}

func savedFeedback(t *testing.T, store *storage.MemoryStore) []*models.Feedback {
	t.Helper()
	items, _, err := store.ListFeedback(&storage.FeedbackFilter{})
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	return items
}

func TestHandleMessage_NewSenderGetsOptinTemplate(t *testing.T) {
	h := newHarness()

	h.send(t, text("919900001111", "hi"))

	if h.msgr.lastTemplate() != "optin" {
		t.Errorf("template = %q, want %q", h.msgr.lastTemplate(), "optin")
	}
	if len(h.msgr.texts) != 0 {
		t.Errorf("sent %d texts before consent, want 0", len(h.msgr.texts))
	}
}

func TestHandleMessage_OptinYesStartsGreeting(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.send(t, text(phone, "hi"))
	h.send(t, button(phone, "Yes"))

	status, _ := h.store.GetOptinStatus(phone)
	if status != models.OptinYes {
		t.Errorf("optin status = %q, want %q", status, models.OptinYes)
	}
	if len(h.msgr.texts) != 2 {
		t.Fatalf("sent %d texts, want 2 greeting messages", len(h.msgr.texts))
	}
	if !strings.Contains(h.msgr.texts[0].body, "Benares Club") {
		t.Errorf("greeting = %q, want club greeting", h.msgr.texts[0].body)
	}
	if !strings.Contains(h.msgr.texts[1].body, "*name*") {
		t.Errorf("prompt = %q, want name prompt", h.msgr.texts[1].body)
	}

	session, ok := h.sessions.Get(phone)
	if !ok || session.LastTemplate != StepGetName {
		t.Errorf("step = %q, want %q", session.LastTemplate, StepGetName)
	}
}

func TestHandleMessage_OptinNoClearsSession(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.send(t, text(phone, "hi"))
	h.send(t, button(phone, "No"))

	if _, ok := h.sessions.Get(phone); ok {
		t.Error("session should be cleared after declining consent")
	}
	if !strings.Contains(h.msgr.lastText(), "will not receive") {
		t.Errorf("confirmation = %q, want decline confirmation", h.msgr.lastText())
	}
}

func TestHandleMessage_NonButtonReplyRepromptsOptin(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.send(t, text(phone, "hi"))
	h.send(t, text(phone, "yes please"))

	if len(h.msgr.templates) != 2 {
		t.Fatalf("sent %d templates, want 2 optin prompts", len(h.msgr.templates))
	}
	if h.msgr.lastTemplate() != "optin" {
		t.Errorf("template = %q, want %q", h.msgr.lastTemplate(), "optin")
	}
}

func TestHandleMessage_GreetingThenNameCapture(t *testing.T) {
	h := newHarness()
	phone := "919900001111"
	h.optIn(phone)

	h.send(t, text(phone, "hello"))
	if !strings.Contains(h.msgr.lastText(), "*name*") {
		t.Fatalf("prompt = %q, want name prompt", h.msgr.lastText())
	}

	h.send(t, text(phone, "Asha Verma"))

	session, _ := h.sessions.Get(phone)
	if session.Name != "Asha Verma" {
		t.Errorf("name = %q, want %q", session.Name, "Asha Verma")
	}
	if session.LastTemplate != StepGetMembershipNo {
		t.Errorf("step = %q, want %q", session.LastTemplate, StepGetMembershipNo)
	}
	if !strings.Contains(h.msgr.lastText(), "membership number") {
		t.Errorf("prompt = %q, want membership prompt", h.msgr.lastText())
	}
}

func TestHandleMessage_FullFlowWithoutImage(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.runToImagePrompt(t, phone)
	if h.msgr.lastTemplate() != "image_upload" {
		t.Fatalf("template = %q, want %q", h.msgr.lastTemplate(), "image_upload")
	}

	h.send(t, button(phone, "No"))

	saved := savedFeedback(t, h.store)
	if len(saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(saved))
	}
	fb := saved[0]
	if fb.Name != "Asha Verma" || fb.MembershipNumber != "MB-2041" {
		t.Errorf("record = %q/%q, want Asha Verma/MB-2041", fb.Name, fb.MembershipNumber)
	}
	if fb.Category != models.CategoryUpkeep {
		t.Errorf("category = %q, want %q", fb.Category, models.CategoryUpkeep)
	}
	if fb.MediaURL != nil {
		t.Errorf("media URL = %v, want nil", *fb.MediaURL)
	}
	if !strings.Contains(h.msgr.lastText(), "recorded successfully") {
		t.Errorf("last text = %q, want thank-you", h.msgr.lastText())
	}
	if len(h.msgr.notified) != 1 {
		t.Errorf("notified %d times, want 1", len(h.msgr.notified))
	}
	if _, ok := h.sessions.Get(phone); ok {
		t.Error("session should be destroyed after submission")
	}
}

func TestHandleMessage_ImageCompletesFlow(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.runToImagePrompt(t, phone)
	h.send(t, button(phone, "Yes"))
	if !strings.Contains(h.msgr.lastText(), "upload the image now") {
		t.Fatalf("prompt = %q, want upload prompt", h.msgr.lastText())
	}

	h.send(t, image(phone, "MEDIA123", "the broken bench"))

	saved := savedFeedback(t, h.store)
	if len(saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(saved))
	}
	fb := saved[0]
	if fb.MediaURL == nil || *fb.MediaURL != h.uploader.url {
		t.Errorf("media URL = %v, want %q", fb.MediaURL, h.uploader.url)
	}
	if fb.Caption == nil || *fb.Caption != "the broken bench" {
		t.Errorf("caption = %v, want %q", fb.Caption, "the broken bench")
	}
	if len(h.uploader.uploads) != 1 {
		t.Fatalf("uploaded %d files, want 1", len(h.uploader.uploads))
	}
	if !strings.HasPrefix(h.uploader.uploads[0], "feedback_"+phone+"_") {
		t.Errorf("file name = %q, want feedback_<phone>_<ts>.jpg", h.uploader.uploads[0])
	}
}

func TestHandleMessage_ImageWithoutYesButtonAlsoCompletes(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	// The member skips the Yes/No prompt and just sends the photo.
	h.runToImagePrompt(t, phone)
	h.send(t, image(phone, "MEDIA123", ""))

	saved := savedFeedback(t, h.store)
	if len(saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(saved))
	}
	if saved[0].MediaURL == nil {
		t.Error("record should carry the uploaded image URL")
	}
	if !strings.Contains(h.msgr.lastText(), "recorded successfully") {
		t.Errorf("last text = %q, want thank-you", h.msgr.lastText())
	}
	if _, ok := h.sessions.Get(phone); ok {
		t.Error("session should be destroyed after submission")
	}
}

func TestHandleMessage_DownloadFailureKeepsSession(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.runToImagePrompt(t, phone)
	h.send(t, button(phone, "Yes"))

	h.msgr.downloadErr = errors.New("failed to download media after 3 attempts: media host returned 500")
	h.send(t, image(phone, "MEDIA123", ""))

	if h.msgr.lastText() != "Could not process your image." {
		t.Errorf("reply = %q, want image failure notice", h.msgr.lastText())
	}
	if len(savedFeedback(t, h.store)) != 0 {
		t.Error("nothing should be saved when the image cannot be fetched")
	}

	session, ok := h.sessions.Get(phone)
	if !ok {
		t.Fatal("session should survive a failed image download")
	}
	if session.Name != "Asha Verma" || session.Suggestion == "" {
		t.Errorf("session lost collected fields: %+v", session)
	}
	if len(h.uploader.uploads) != 0 {
		t.Errorf("uploaded %d files, want 0", len(h.uploader.uploads))
	}
}

func TestHandleMessage_StrayTextWhileAwaitingImage(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.runToImagePrompt(t, phone)
	h.send(t, button(phone, "Yes"))
	h.send(t, text(phone, "sending it in a second"))

	if h.msgr.lastText() != "Please upload the image." {
		t.Errorf("reply = %q, want upload reminder", h.msgr.lastText())
	}
	session, _ := h.sessions.Get(phone)
	if !session.AwaitingImageUpload {
		t.Error("awaiting-image flag should stay set on stray text")
	}
}

func TestHandleMessage_DebounceDropsRapidDuplicate(t *testing.T) {
	h := newHarness()
	phone := "919900001111"
	h.optIn(phone)

	h.send(t, text(phone, "hello"))
	sent := len(h.msgr.texts)

	// Redelivery 500ms later must be invisible.
	h.clock = h.clock.Add(500 * time.Millisecond)
	if err := h.engine.HandleMessage(text(phone, "hello")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(h.msgr.texts) != sent {
		t.Errorf("sent %d texts after duplicate, want %d", len(h.msgr.texts), sent)
	}
}

func TestHandleMessage_IdleSessionRestarts(t *testing.T) {
	h := newHarness()
	phone := "919900001111"
	h.optIn(phone)

	h.send(t, text(phone, "hello"))
	h.send(t, text(phone, "Asha Verma"))

	h.clock = h.clock.Add(11 * time.Minute)
	h.send(t, text(phone, "MB-2041"))

	// The stale session is gone, so the reply is treated as a fresh start.
	session, ok := h.sessions.Get(phone)
	if !ok {
		t.Fatal("expected a fresh session")
	}
	if session.Name != "" {
		t.Errorf("name = %q, want empty after idle expiry", session.Name)
	}
	if session.LastTemplate != StepGetName {
		t.Errorf("step = %q, want %q", session.LastTemplate, StepGetName)
	}
	if !strings.Contains(h.msgr.lastText(), "*name*") {
		t.Errorf("reply = %q, want restarted greeting", h.msgr.lastText())
	}
}

func TestHandleMessage_StopOptsOutMidFlow(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.runToImagePrompt(t, phone)
	h.send(t, text(phone, "  STOP  "))

	status, _ := h.store.GetOptinStatus(phone)
	if status != models.OptinNo {
		t.Errorf("optin status = %q, want %q", status, models.OptinNo)
	}
	if _, ok := h.sessions.Get(phone); ok {
		t.Error("session should be cleared on stop")
	}
	if !strings.Contains(h.msgr.lastText(), "opted out") {
		t.Errorf("reply = %q, want opt-out confirmation", h.msgr.lastText())
	}

	// The next message runs into the consent gate again.
	h.send(t, text(phone, "hello"))
	if h.msgr.lastTemplate() != "optin" {
		t.Errorf("template = %q, want %q after stop", h.msgr.lastTemplate(), "optin")
	}
	if len(savedFeedback(t, h.store)) != 0 {
		t.Error("no feedback should be saved for an abandoned flow")
	}
}

func TestHandleMessage_NoSecondSaveAfterSubmission(t *testing.T) {
	h := newHarness()
	phone := "919900001111"

	h.runToImagePrompt(t, phone)
	h.send(t, button(phone, "No"))
	if len(savedFeedback(t, h.store)) != 1 {
		t.Fatal("expected one saved record")
	}

	// A replayed finalize button lands on a fresh session and is ignored.
	h.send(t, button(phone, "No"))

	if got := len(savedFeedback(t, h.store)); got != 1 {
		t.Errorf("saved %d records after replay, want 1", got)
	}
	if len(h.msgr.notified) != 1 {
		t.Errorf("notified %d times, want 1", len(h.msgr.notified))
	}
}

func TestHandleMessage_MissingInfoRestartsCollection(t *testing.T) {
	h := newHarness()
	phone := "919900001111"
	h.optIn(phone)

	// An inconsistent session deep in the flow.
	h.sessions.Set(phone, &Session{
		OptinChecked: true,
		OptinStatus:  models.OptinYes,
		Name:         "Asha Verma",
		LastTemplate: StepImageUpload,
		UpdatedAt:    h.clock,
	})

	h.send(t, button(phone, "No"))

	if len(savedFeedback(t, h.store)) != 0 {
		t.Error("incomplete session must not be saved")
	}
	if !strings.Contains(h.msgr.texts[0].body, "restart") {
		t.Errorf("reply = %q, want restart notice", h.msgr.texts[0].body)
	}

	session, ok := h.sessions.Get(phone)
	if !ok {
		t.Fatal("expected a fresh session after restart")
	}
	if session.Name != "" || session.LastTemplate != StepGetName {
		t.Errorf("fresh session = %+v, want empty at get_name", session)
	}
}

func TestHandleMessage_UnsupportedTypeRejected(t *testing.T) {
	h := newHarness()
	phone := "919900001111"
	h.optIn(phone)

	h.send(t, &IncomingMessage{From: phone, Type: "audio"})

	if h.msgr.lastText() != "I can only process text, images, or buttons." {
		t.Errorf("reply = %q, want unsupported-type notice", h.msgr.lastText())
	}
}

func TestHandleMessage_FromMeIgnored(t *testing.T) {
	h := newHarness()

	h.send(t, &IncomingMessage{From: "919900001111", Type: "text", Text: "hi", FromMe: true})

	if len(h.msgr.texts) != 0 || len(h.msgr.templates) != 0 {
		t.Error("outbound echoes must be dropped")
	}
}

func TestHandleMessage_TextBeforeCategoryIsIgnored(t *testing.T) {
	h := newHarness()
	phone := "919900001111"
	h.optIn(phone)

	h.send(t, text(phone, "hello"))
	h.send(t, text(phone, "Asha Verma"))
	h.send(t, text(phone, "MB-2041"))
	if h.msgr.lastTemplate() != "select" {
		t.Fatalf("template = %q, want %q", h.msgr.lastTemplate(), "select")
	}

	sentTexts := len(h.msgr.texts)
	sentTemplates := len(h.msgr.templates)

	// Free text instead of pressing a category button answers nothing.
	h.send(t, text(phone, "the gym"))

	if len(h.msgr.texts) != sentTexts || len(h.msgr.templates) != sentTemplates {
		t.Error("text before category selection should be a no-op")
	}
}
