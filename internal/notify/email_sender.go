package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/resultalert/internal/types"
)

type EmailConfig struct {
	SMTPServer string `mapstructure:"smtp_server"`
	SMTPPort   int    `mapstructure:"smtp_port"`
	SMTPUser   string `mapstructure:"smtp_user"`
	SMTPPass   string `mapstructure:"smtp_pass"`
	FromEmail  string `mapstructure:"from"`
	ToEmail    string `mapstructure:"to"`
	Enabled    bool   `mapstructure:"enabled"`
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	cfg    EmailConfig
	dialer mailDialer
	log    zerolog.Logger
}

func NewEmailSender(cfg EmailConfig, log zerolog.Logger) *EmailSender {
	dialer := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second
	return &EmailSender{cfg: cfg, dialer: dialer, log: log}
}

// Send delivers an email with HTML body and plain text fallback.
func (s *EmailSender) Send(msg *RenderedMessage) error {
	if !s.cfg.Enabled {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", s.cfg.ToEmail)
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" && msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
	} else {
		m.SetBody("text/plain", msg.Text)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Error().Err(err).Str("to", s.cfg.ToEmail).Str("subject", msg.Subject).Msg("failed to send email")
		return err
	}

	s.log.Info().Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// EmailSink renders and mails every result.
type EmailSink struct {
	renderer *HTMLEmailRenderer
	sender   *EmailSender
}

func NewEmailSink(cfg EmailConfig, log zerolog.Logger) *EmailSink {
	return &EmailSink{renderer: NewHTMLEmailRenderer(), sender: NewEmailSender(cfg, log)}
}

func (e *EmailSink) Emit(_ context.Context, r types.AnalysisResult) error {
	msg, err := e.renderer.Render(r)
	if err != nil {
		return err
	}
	return e.sender.Send(msg)
}
