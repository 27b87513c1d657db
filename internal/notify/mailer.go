package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"

	"github.com/recruitin/kandidatentekort/internal/config"
)

// ErrMailerNotConfigured is returned when no SMTP credentials are set.
var ErrMailerNotConfigured = eris.New("notify: smtp credentials not configured")

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an authenticated SMTP server. Port 465 uses
// implicit TLS, other ports require STARTTLS.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers msg as multipart/alternative with a plain-text part first.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		return ErrMailerNotConfigured
	}

	em := mail.NewMsg()
	if err := em.FromFormat(m.cfg.FromName, m.cfg.Username); err != nil {
		return eris.Wrap(err, "notify: from address")
	}
	if err := em.To(msg.To); err != nil {
		return eris.Wrapf(err, "notify: to address %q", msg.To)
	}
	em.Subject(msg.Subject)
	em.SetDate()
	em.SetMessageID()
	em.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		em.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return eris.Wrap(err, "notify: smtp client")
	}
	if err := client.DialAndSendWithContext(ctx, em); err != nil {
		return eris.Wrapf(err, "notify: smtp send to %s", msg.To)
	}
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	port := m.cfg.Port
	if port == 0 {
		port = 465
	}
	timeout := time.Duration(m.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(timeout),
	}
	if port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return opts
}
