package services

import (
	"fmt"
	"html/template"
	"log"
	"os"
	"strings"
	"time"

	"github.com/resendlabs/resend-go"

	"github.com/benaresclub/feedback-backend/internal/models"
	"github.com/benaresclub/feedback-backend/internal/storage"
)

// ReportService renders and emails the daily feedback digest.
type ReportService struct {
	store      storage.Store
	resend     *resend.Client
	from       string
	recipients []string
	location   *time.Location
}

// NewReportService creates the digest mailer
func NewReportService(store storage.Store) (*ReportService, error) {
	apiKey := os.Getenv("RESEND_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY environment variable is required")
	}

	raw := os.Getenv("REPORT_RECIPIENTS")
	if raw == "" {
		return nil, fmt.Errorf("REPORT_RECIPIENTS environment variable is required")
	}
	var recipients []string
	for _, email := range strings.Split(raw, ",") {
		email = strings.TrimSpace(email)
		if email != "" {
			recipients = append(recipients, email)
		}
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("REPORT_RECIPIENTS contains no addresses")
	}

	from := os.Getenv("REPORT_FROM")
	if from == "" {
		from = "Benares Club Feedback System <reports@benaresclub.in>"
	}

	location, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("failed to load report timezone: %w", err)
	}

	return &ReportService{
		store:      store,
		resend:     resend.NewClient(apiKey),
		from:       from,
		recipients: recipients,
		location:   location,
	}, nil
}

// SendDailyReport mails the digest for the IST calendar day containing now.
func (r *ReportService) SendDailyReport(now time.Time) error {
	day := now.In(r.location)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.location)
	end := start.Add(24 * time.Hour)

	count, err := r.store.CountFeedbackBetween(start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("failed to count daily feedback: %w", err)
	}
	details, err := r.store.GetFeedbackBetween(start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("failed to fetch daily feedback: %w", err)
	}

	html, err := renderDailyReport(count, details, day, r.location)
	if err != nil {
		return fmt.Errorf("failed to render daily report: %w", err)
	}

	request := &resend.SendEmailRequest{
		From:    r.from,
		To:      r.recipients,
		Subject: fmt.Sprintf("Daily Feedback Report - %s (%d feedbacks)", day.Format("2 January 2006"), count),
		Html:    html,
	}

	sent, err := r.resend.Emails.Send(request)
	if err != nil {
		return fmt.Errorf("failed to send daily report: %w", err)
	}

	log.Printf("✅ Daily feedback report sent (id=%s): %d feedbacks on %s", sent.Id, count, day.Format("2006-01-02"))
	return nil
}

// SendErrorNotification alerts the first recipient that report generation
// failed. Best effort; its own failure is only logged.
func (r *ReportService) SendErrorNotification(cause error) {
	html := fmt.Sprintf(`<h2>Daily Report Generation Failed</h2>
<p><strong>Time:</strong> %s</p>
<p><strong>Error:</strong> %s</p>`,
		time.Now().In(r.location).Format("02 Jan 2006 15:04:05 MST"),
		template.HTMLEscapeString(cause.Error()))

	request := &resend.SendEmailRequest{
		From:    r.from,
		To:      r.recipients[:1],
		Subject: "Daily Report Generation Failed",
		Html:    html,
	}

	if _, err := r.resend.Emails.Send(request); err != nil {
		log.Printf("Failed to send error notification: %v", err)
	}
}

var reportTemplate = template.Must(template.New("daily_report").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Daily Feedback Report</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #2c5530; color: white; padding: 20px; border-radius: 8px; margin-bottom: 20px;">
    <h1 style="margin: 0; font-size: 24px;">Daily Feedback Report</h1>
    <p style="margin: 10px 0 0 0; font-size: 16px;">Benares Club - {{.Date}}</p>
  </div>

  <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin-bottom: 20px;">
    <h2 style="color: #2c5530; margin-top: 0;">Summary</h2>
    <p style="font-size: 18px; margin: 10px 0;">
      <strong>Total Feedbacks Received:</strong>
      <span style="background-color: #2c5530; color: white; padding: 5px 10px; border-radius: 4px; font-weight: bold;">{{.Count}}</span>
    </p>
  </div>

  <div style="background-color: white; padding: 20px; border: 1px solid #ddd; border-radius: 8px;">
    {{if .Rows}}
    <h3>Feedback Details:</h3>
    <table style="border-collapse: collapse; width: 100%; margin-top: 20px;">
      <thead>
        <tr style="background-color: #f5f5f5;">
          <th style="border: 1px solid #ddd; padding: 12px; text-align: left;">Time</th>
          <th style="border: 1px solid #ddd; padding: 12px; text-align: left;">Name</th>
          <th style="border: 1px solid #ddd; padding: 12px; text-align: left;">Membership No.</th>
          <th style="border: 1px solid #ddd; padding: 12px; text-align: left;">Category</th>
          <th style="border: 1px solid #ddd; padding: 12px; text-align: left;">Suggestion</th>
        </tr>
      </thead>
      <tbody>
        {{range .Rows}}
        <tr>
          <td style="border: 1px solid #ddd; padding: 12px;">{{.Time}}</td>
          <td style="border: 1px solid #ddd; padding: 12px;">{{.Name}}</td>
          <td style="border: 1px solid #ddd; padding: 12px;">{{.MembershipNumber}}</td>
          <td style="border: 1px solid #ddd; padding: 12px;">{{.Category}}</td>
          <td style="border: 1px solid #ddd; padding: 12px; max-width: 300px; word-wrap: break-word;">{{.Suggestion}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{else}}
    <p style="color: #666; font-style: italic;">No feedback received today.</p>
    {{end}}
  </div>

  <div style="margin-top: 20px; padding: 20px; background-color: #f8f9fa; border-radius: 8px; text-align: center;">
    <p style="margin: 0; color: #666; font-size: 14px;">
      This is an automated report generated at 11:00 PM IST<br>
      Benares Club Feedback System
    </p>
  </div>
</body>
</html>`))

type reportRow struct {
	Time             string
	Name             string
	MembershipNumber string
	Category         string
	Suggestion       string
}

type reportData struct {
	Date  string
	Count int64
	Rows  []reportRow
}

func renderDailyReport(count int64, details []*models.Feedback, day time.Time, location *time.Location) (string, error) {
	data := reportData{
		Date:  day.Format("2 January 2006"),
		Count: count,
	}
	for _, fb := range details {
		data.Rows = append(data.Rows, reportRow{
			Time:             fb.CreatedAt.In(location).Format("03:04 PM"),
			Name:             fb.Name,
			MembershipNumber: fb.MembershipNumber,
			Category:         fb.Category,
			Suggestion:       fb.Suggestion,
		})
	}

	var buf strings.Builder
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
