package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recruitin/kandidatentekort/internal/config"
)

func TestSMTPMailer_NotConfigured(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Username: "a@b.nl"})
	err := m.Send(context.Background(), Message{To: "x@y.nl", Subject: "s", Text: "t"})
	assert.ErrorIs(t, err, ErrMailerNotConfigured)
}

func TestSMTPMailer_InvalidRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "127.0.0.1", Port: 1, Username: "a@b.nl", Password: "p"})
	err := m.Send(context.Background(), Message{To: "not an address", Subject: "s", Text: "t"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "to address")
}

func TestSMTPMailer_ClientOptions(t *testing.T) {
	assert.Len(t, NewSMTPMailer(config.SMTPConfig{}).clientOptions(), 6)
	assert.Len(t, NewSMTPMailer(config.SMTPConfig{Port: 587, TimeoutSecs: 5}).clientOptions(), 6)
}
