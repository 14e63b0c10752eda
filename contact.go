package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

var ErrInvalidContact = errors.New("name, email and message are required")

// ContactForm is bound from the contact form post (or JSON on /api/contact).
type ContactForm struct {
	FullName string `form:"fullName" json:"fullName" binding:"required,max=200"`
	Email    string `form:"email" json:"email" binding:"required,email,max=254"`
	Message  string `form:"message" json:"message" binding:"required,max=5000"`
}

func (f *ContactForm) normalize() {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.TrimSpace(f.Email)
	f.Message = strings.TrimSpace(f.Message)
}

// Mailer delivers a stored contact message to the site owner.
type Mailer interface {
	Send(ctx context.Context, m *ContactMessage) error
}

type smtpMailer struct {
	cfg SMTPConfig
}

func newSMTPMailer(cfg SMTPConfig) *smtpMailer {
	return &smtpMailer{cfg: cfg}
}

func (s *smtpMailer) Send(_ context.Context, m *ContactMessage) error {
	if s.cfg.User == "" || s.cfg.Pass == "" {
		return fmt.Errorf("SMTP credentials not configured")
	}

	msg := composeContactEmail(s.cfg.ToEmail, s.cfg.User, m)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	if err := smtp.SendMail(s.cfg.Host+":"+s.cfg.Port, auth, s.cfg.User, []string{s.cfg.ToEmail}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// composeContactEmail builds the RFC 822 message. Header values are stripped
// of line breaks so a visitor cannot inject headers.
func composeContactEmail(to, from string, m *ContactMessage) []byte {
	name := headerSafe(m.FullName)
	replyTo := headerSafe(m.Email)

	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form
`, m.FullName, m.Email, m.Message)

	return []byte("To: " + to + "\r\n" +
		"Subject: Portfolio Contact: " + name + "\r\n" +
		"From: " + from + "\r\n" +
		"Reply-To: " + replyTo + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

type ContactService struct {
	store   *Store
	mailer  Mailer
	metrics *Metrics
}

func NewContactService(store *Store, mailer Mailer, metrics *Metrics) *ContactService {
	return &ContactService{store: store, mailer: mailer, metrics: metrics}
}

// Submit stores the message first so nothing is lost when SMTP is down, then
// tries to deliver it. A delivery failure is returned but the row stays.
func (s *ContactService) Submit(ctx context.Context, form ContactForm, hashedIP string) (*ContactMessage, error) {
	form.normalize()
	if form.FullName == "" || form.Email == "" || form.Message == "" {
		s.metrics.contactMessage("invalid")
		return nil, ErrInvalidContact
	}
	msg := &ContactMessage{
		FullName: form.FullName,
		Email:    form.Email,
		Message:  form.Message,
		HashedIP: hashedIP,
	}
	if err := s.store.InsertContactMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.Error("contact delivery failed", "id", msg.ID, "error", err)
		s.metrics.contactMessage("stored")
		return msg, err
	}
	if err := s.store.MarkDelivered(ctx, msg.ID); err != nil {
		slog.Warn("mark contact delivered", "id", msg.ID, "error", err)
	}
	msg.Delivered = true
	s.metrics.contactMessage("delivered")
	slog.Info("contact message delivered", "id", msg.ID, "from", hashedIP)
	return msg, nil
}
