package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Config struct {
	APIKey       string
	FromAddress  string
	FromName     string
	DashboardURL string
}

// Receipt describes one applied purchase.
type Receipt struct {
	Email    string
	Credits  int
	ProUntil *time.Time
	Amount   int64 // minor units
	OrderID  string
}

type EmailService struct {
	client    *resend.Client
	cfg       Config
	templates *template.Template
	logger    *zap.Logger
}

func NewEmailService(cfg Config, logger *zap.Logger) (*EmailService, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	return &EmailService{
		client:    resend.NewClient(cfg.APIKey),
		cfg:       cfg,
		templates: tmpl,
		logger:    logger.With(zap.String("component", "email")),
	}, nil
}

// Enabled is false when no API key is configured; sends become no-ops.
func (s *EmailService) Enabled() bool {
	return s.cfg.APIKey != ""
}

func (s *EmailService) SendReceipt(r Receipt) error {
	if !s.Enabled() {
		s.logger.Debug("email disabled, skipping receipt", zap.String("order_id", r.OrderID))
		return nil
	}

	html, err := s.renderReceipt(r)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.cfg.FromName + " <" + s.cfg.FromAddress + ">",
		To:      []string{r.Email},
		Subject: "Your Mapcraft purchase receipt",
		Html:    html,
	}

	resp, err := s.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}

	s.logger.Info("receipt sent", zap.String("order_id", r.OrderID), zap.String("message_id", resp.Id))
	return nil
}

func (s *EmailService) renderReceipt(r Receipt) (string, error) {
	data := map[string]interface{}{
		"Credits":      r.Credits,
		"Amount":       "",
		"OrderID":      r.OrderID,
		"DashboardURL": s.cfg.DashboardURL,
		"Year":         time.Now().Year(),
	}
	if r.Amount > 0 {
		data["Amount"] = fmt.Sprintf("%d.%02d", r.Amount/100, r.Amount%100)
	}
	if r.ProUntil != nil {
		data["ProUntil"] = r.ProUntil.Format("January 2, 2006")
	}

	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, "receipt.html", data); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return body.String(), nil
}
