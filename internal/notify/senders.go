package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/config"
	"ms-booking/internal/models"
)

// EmailSender delivers jobs over SMTP.
type EmailSender struct {
	cfg config.EmailConfig
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

func (s *EmailSender) Send(ctx context.Context, job *models.NotificationJob) (string, error) {
	subject, body := renderTemplate(job)
	msg := bytes.Buffer{}
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", job.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort

	if err := s.send(addr, auth, s.cfg.FromAddress, []string{job.Recipient}, msg.Bytes()); err != nil {
		return "", fmt.Errorf("smtp send to %s failed: %w", job.Recipient, err)
	}
	return "smtp-" + uuid.NewString(), nil
}

// PushSender posts jobs to the push gateway.
type PushSender struct {
	cfg    config.PushConfig
	client *http.Client
}

func NewPushSender(cfg config.PushConfig) *PushSender {
	return &PushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *PushSender) Send(ctx context.Context, job *models.NotificationJob) (string, error) {
	subject, body := renderTemplate(job)
	payload, err := json.Marshal(map[string]interface{}{
		"user_id": job.UserID,
		"token":   job.Recipient,
		"title":   subject,
		"body":    body,
		"data":    job.TemplateData,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL+"/v1/push", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "push-" + uuid.NewString(), nil
	}
	return result.MessageID, nil
}

func renderTemplate(job *models.NotificationJob) (subject, body string) {
	name, _ := job.TemplateData["customer_name"].(string)
	ref := job.BookingReference

	switch job.TemplateKey {
	case TemplateBookingConfirmed:
		subject = fmt.Sprintf("Booking %s confirmed", ref)
		body = fmt.Sprintf("Hi %s,\n\nYour booking %s is confirmed. Your tickets are attached to your account.\n", name, ref)
	case TemplateBookingRefunded:
		subject = fmt.Sprintf("Booking %s refunded", ref)
		body = fmt.Sprintf("Hi %s,\n\nYour booking %s has been refunded. The amount will reach your account shortly.\n", name, ref)
	case TemplateEventReminder:
		subject = "Your event is coming up"
		body = fmt.Sprintf("Hi %s,\n\nA reminder that the event for booking %s is coming up soon.\n", name, ref)
	default:
		subject = "Notification"
		body = fmt.Sprintf("Hi %s,\n\nYou have an update for booking %s.\n", name, ref)
	}
	return subject, body
}
