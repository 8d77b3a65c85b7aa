package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/benaresclub/feedback-backend/internal/models"
	"github.com/benaresclub/feedback-backend/internal/storage"
)

// IncomingMessage is one normalized inbound webhook event.
type IncomingMessage struct {
	From          string
	Type          string // text, image, button; anything else is unsupported
	Text          string
	ButtonPayload string
	MediaID       string
	Caption       string
	FromMe        bool
}

const (
	// A session untouched for longer than this is discarded on the next
	// message and the sender restarts from scratch.
	sessionIdleLimit = 10 * time.Minute

	// Messages arriving under this window apart are treated as duplicate
	// deliveries and dropped.
	debounceWindow = time.Second
)

// Template names registered with the Cloud API.
const (
	templateOptin       = "optin"
	templateSelect      = "select"
	templateImageUpload = "image_upload"
)

// ConversationService drives the multi-turn feedback collection flow. One
// inbound message per call; all state lives in the injected session store.
type ConversationService struct {
	sessions  SessionStore
	store     storage.Store
	messenger Messenger
	media     MediaUploader
	now       func() time.Time
}

// NewConversationService creates the conversation engine
func NewConversationService(sessions SessionStore, store storage.Store, messenger Messenger, media MediaUploader) *ConversationService {
	return &ConversationService{
		sessions:  sessions,
		store:     store,
		messenger: messenger,
		media:     media,
		now:       time.Now,
	}
}

// HandleMessage processes a single inbound message and advances the
// sender's conversation.
func (c *ConversationService) HandleMessage(msg *IncomingMessage) error {
	if msg.FromMe {
		return nil
	}

	from := msg.From
	now := c.now()

	session, exists := c.sessions.Get(from)
	if exists && now.Sub(session.UpdatedAt) > sessionIdleLimit {
		c.sessions.Clear(from)
		exists = false
	}
	if !exists {
		session = &Session{}
	}

	if !session.LastMessageAt.IsZero() && now.Sub(session.LastMessageAt) < debounceWindow {
		return nil
	}
	session.LastMessageAt = now
	session.UpdatedAt = now
	c.sessions.Set(from, session)

	switch msg.Type {
	case "text", "image", "button":
	default:
		c.messenger.SendText(from, "I can only process text, images, or buttons.")
		return nil
	}

	// "stop" is an escape hatch from every state, opted in or not.
	if msg.Type == "text" && strings.EqualFold(strings.TrimSpace(msg.Text), "stop") {
		if err := c.store.SetOptinStatus(from, models.OptinNo); err != nil {
			log.Printf("Failed to record opt-out for %s: %v", from, err)
		}
		c.sessions.Clear(from)
		c.messenger.SendText(from, "You have been opted out and will no longer receive messages. Reply anytime to opt back in.")
		return nil
	}

	// Consent is looked up once per session and cached on it.
	if !session.OptinChecked {
		status, err := c.store.GetOptinStatus(from)
		if err != nil {
			log.Printf("Opt-in lookup failed for %s: %v", from, err)
			status = models.OptinNo
		}
		session.OptinChecked = true
		session.OptinStatus = status
		c.sessions.Set(from, session)

		if status != models.OptinYes {
			c.messenger.SendTemplate(from, templateOptin)
			return nil
		}
	}

	if session.OptinStatus != models.OptinYes {
		return c.handleOptinReply(from, session, msg)
	}

	switch msg.Type {
	case "text":
		return c.handleText(from, session, msg)
	case "image":
		return c.handleImage(from, session, msg)
	case "button":
		return c.handleButton(from, session, msg)
	}
	return nil
}

// handleOptinReply runs while the sender has not consented: only the Yes/No
// buttons mean anything, everything else re-prompts.
func (c *ConversationService) handleOptinReply(from string, session *Session, msg *IncomingMessage) error {
	if msg.Type == "button" {
		switch msg.ButtonPayload {
		case "Yes":
			if err := c.store.SetOptinStatus(from, models.OptinYes); err != nil {
				log.Printf("Failed to record opt-in for %s: %v", from, err)
				c.messenger.SendText(from, "Sorry, something went wrong. Please try again.")
				return err
			}
			session.OptinStatus = models.OptinYes
			c.sendGreeting(from, session)
			return nil

		case "No":
			if err := c.store.SetOptinStatus(from, models.OptinNo); err != nil {
				log.Printf("Failed to record opt-out for %s: %v", from, err)
			}
			c.messenger.SendText(from, "No problem, you will not receive any messages from us.")
			c.sessions.Clear(from)
			return nil
		}
	}

	c.messenger.SendTemplate(from, templateOptin)
	return nil
}

func (c *ConversationService) handleText(from string, session *Session, msg *IncomingMessage) error {
	text := strings.TrimSpace(msg.Text)

	if session.Name == "" && session.LastTemplate != StepGetName {
		c.sendGreeting(from, session)
		return nil
	}

	if session.Name == "" && session.LastTemplate == StepGetName {
		session.Name = text
		session.LastTemplate = StepGetMembershipNo
		c.sessions.Set(from, session)
		c.messenger.SendText(from, "Please enter you *membership number*.")
		return nil
	}

	if session.MembershipNumber == "" && session.LastTemplate == StepGetMembershipNo {
		session.MembershipNumber = text
		session.LastTemplate = StepSelectCategory
		c.sessions.Set(from, session)
		c.messenger.SendTemplate(from, templateSelect)
		return nil
	}

	// Free text before the category button has been pressed answers no
	// open question. Deliberate no-op.
	if session.Category == "" {
		return nil
	}

	if session.Suggestion == "" && session.LastTemplate == StepDescribeIssue {
		session.Suggestion = text
		session.LastTemplate = StepImageUpload
		c.sessions.Set(from, session)
		c.messenger.SendTemplate(from, templateImageUpload)
		return nil
	}

	if session.AwaitingImageUpload {
		c.messenger.SendText(from, "Please upload the image.")
		return nil
	}

	return nil
}

func (c *ConversationService) handleButton(from string, session *Session, msg *IncomingMessage) error {
	payload := msg.ButtonPayload

	if payload == models.CategoryUpkeep || payload == models.CategoryOthers {
		session.Category = payload
		session.LastTemplate = StepDescribeIssue
		c.sessions.Set(from, session)
		c.messenger.SendText(from, fmt.Sprintf("Please describe the issue related to %s.", strings.ToLower(payload)))
		return nil
	}

	if payload == "Yes" && session.LastTemplate == StepImageUpload {
		session.AwaitingImageUpload = true
		c.sessions.Set(from, session)
		c.messenger.SendText(from, "Please upload the image now.")
		return nil
	}

	if payload == "No" && session.LastTemplate == StepImageUpload {
		if session.HasAllRequiredData() {
			return c.finalize(from, session)
		}

		// Required data missing this deep in the flow means the session
		// went inconsistent; restart collection from scratch.
		c.messenger.SendText(from, "Missing some info. Let's restart.")
		c.sessions.Clear(from)
		fresh := &Session{
			OptinChecked:  true,
			OptinStatus:   models.OptinYes,
			LastMessageAt: session.LastMessageAt,
			UpdatedAt:     session.UpdatedAt,
		}
		c.sendGreeting(from, fresh)
		return nil
	}

	// Unknown button payloads are ignored.
	return nil
}

func (c *ConversationService) handleImage(from string, session *Session, msg *IncomingMessage) error {
	publicURL, err := c.ingestImage(from, msg)
	if err != nil {
		log.Printf("Failed to handle image upload from %s: %v", from, err)
		c.messenger.SendText(from, "Could not process your image.")
		return nil
	}

	session.ImageURL = publicURL
	session.Caption = strings.TrimSpace(msg.Caption)
	c.sessions.Set(from, session)

	if session.HasAllRequiredData() {
		return c.finalize(from, session)
	}

	c.messenger.SendText(from, "Got your image. Please type a short description of the issue.")
	return nil
}

// ingestImage runs the media sub-flow: resolve the short-lived download URL,
// fetch the binary with retries, and push it to blob storage.
func (c *ConversationService) ingestImage(from string, msg *IncomingMessage) (string, error) {
	url, err := c.messenger.GetMediaURL(msg.MediaID)
	if err != nil {
		return "", err
	}

	data, err := c.messenger.DownloadMedia(url)
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("feedback_%s_%d.jpg", from, c.now().UnixMilli())
	return c.media.Upload(fileName, data)
}

// finalize persists the completed record, thanks the member, alerts the
// operators, and destroys the session so a stale replay cannot double-save.
func (c *ConversationService) finalize(from string, session *Session) error {
	fb := &models.Feedback{
		FromPhone:        from,
		Name:             session.Name,
		MembershipNumber: session.MembershipNumber,
		Category:         session.Category,
		Suggestion:       session.Suggestion,
	}
	if session.ImageURL != "" {
		fb.MediaURL = &session.ImageURL
	}
	if session.Caption != "" {
		fb.Caption = &session.Caption
	}

	if err := c.store.SaveFeedback(fb); err != nil {
		log.Printf("Failed to save feedback from %s (name=%q, membership=%q): %v",
			from, session.Name, session.MembershipNumber, err)
		c.messenger.SendText(from, "Sorry, something went wrong recording your feedback. Please try again.")
		return err
	}

	c.messenger.SendText(from, "Thank you, your feedback has been recorded successfully.")
	c.messenger.Notify(from, session.Name, session.MembershipNumber)
	c.sessions.Clear(from)
	return nil
}

func (c *ConversationService) sendGreeting(from string, session *Session) {
	c.messenger.SendText(from, "Greetings from *Benares Club*!")
	c.messenger.SendText(from, "Please enter you *name*.")
	session.LastTemplate = StepGetName
	c.sessions.Set(from, session)
}
