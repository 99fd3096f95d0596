package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// Notifier delivers best-effort notifications. Implementations must never
// let a delivery failure escape to the caller; the signing workflow treats
// notification as fire-and-forget.
type Notifier interface {
	TimesheetApproved(ctx context.Context, approved *models.ApprovedTimesheet)
}

// Mailer posts transactional mail to a MailChannels-style HTTP endpoint.
type Mailer struct {
	endpoint string
	from     string
	fromName string
	bcc      string
	client   *http.Client
	logger   *zap.SugaredLogger
}

func NewMailer(endpoint, from, fromName, bcc string, logger *zap.SugaredLogger) *Mailer {
	return &Mailer{
		endpoint: endpoint,
		from:     from,
		fromName: fromName,
		bcc:      bcc,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To  []address `json:"to"`
	BCC []address `json:"bcc,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailPayload struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

// TimesheetApproved emails the apprentice that their mentor signed the
// entry. Failures are logged and swallowed.
func (m *Mailer) TimesheetApproved(ctx context.Context, approved *models.ApprovedTimesheet) {
	if m.from == "" || approved.ApprenticeEmail == "" {
		m.logger.Warnw("mail not configured, skipping approval notification",
			"timesheet_id", approved.TimesheetID)
		return
	}

	mentor := "your supervisor"
	if approved.MentorName != nil && *approved.MentorName != "" {
		mentor = *approved.MentorName
	}

	html := fmt.Sprintf(`<div style="font-family:system-ui,sans-serif;max-width:600px;margin:0 auto">
<h2>Timesheet Approved</h2>
<p>Hello %s,</p>
<p>Your mentor <strong>%s</strong> has approved your timesheet entry.</p>
<ul>
<li><strong>Date:</strong> %s</li>
<li><strong>Hours:</strong> %s</li>
<li><strong>Description:</strong> %s</li>
</ul>
<p>Keep up the great work!</p>
</div>`,
		approved.FirstName, mentor,
		approved.Date.Format("2006-01-02"), approved.Hours.String(), approved.Description)

	payload := mailPayload{
		Personalizations: []personalization{{To: []address{{Email: approved.ApprenticeEmail}}}},
		From:             address{Email: m.from, Name: m.fromName},
		Subject:          "Timesheet Approved – Mentor Signature Received",
		Content:          []content{{Type: "text/html", Value: html}},
	}
	if m.bcc != "" {
		payload.Personalizations[0].BCC = []address{{Email: m.bcc}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Errorw("failed to encode mail payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		m.logger.Errorw("failed to build mail request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Errorw("failed to send approval email",
			"to", approved.ApprenticeEmail, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		m.logger.Errorw("mail endpoint rejected approval email",
			"to", approved.ApprenticeEmail, "status", resp.StatusCode)
		return
	}
	m.logger.Infow("approval email sent", "to", approved.ApprenticeEmail)
}

// Noop discards notifications. Used in tests and when mail is unconfigured.
type Noop struct{}

func (Noop) TimesheetApproved(ctx context.Context, approved *models.ApprovedTimesheet) {}
