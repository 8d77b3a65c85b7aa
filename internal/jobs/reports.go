package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/benaresclub/feedback-backend/internal/services"
)

// ReportJob schedules the daily feedback digest email.
type ReportJob struct {
	cron    *cron.Cron
	reports *services.ReportService
}

// NewReportJob creates the scheduler pinned to IST
func NewReportJob(reports *services.ReportService) (*ReportJob, error) {
	location, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler timezone: %w", err)
	}

	return &ReportJob{
		cron:    cron.New(cron.WithLocation(location)),
		reports: reports,
	}, nil
}

// Start registers the 11:00 PM IST digest and starts the scheduler.
func (j *ReportJob) Start() error {
	if _, err := j.cron.AddFunc("0 23 * * *", j.run); err != nil {
		return fmt.Errorf("failed to schedule daily report: %w", err)
	}

	j.cron.Start()
	log.Println("📅 Daily feedback report scheduled for 11:00 PM IST")
	return nil
}

// Stop halts the scheduler, waiting for a running report to finish.
func (j *ReportJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Println("Report scheduler stopped")
}

func (j *ReportJob) run() {
	log.Println("🕚 Starting daily feedback report generation...")

	if err := j.reports.SendDailyReport(time.Now()); err != nil {
		log.Printf("❌ Failed to send daily report: %v", err)
		j.reports.SendErrorNotification(err)
		return
	}
	log.Println("✅ Daily report sent successfully")
}
