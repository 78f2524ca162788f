package notification

import (
	"Go2NetProfile/internal/config"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailNotifier_Send(t *testing.T) {
	n := NewEmailNotifier(config.SMTPConfig{
		Host: "smtp.example.edu", Port: 587, From: "netprofile@example.edu",
		To: "secops@example.edu, noc@example.edu,",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, n.Send("Security Summary", "<h1>hi</h1>"))
	assert.Equal(t, "smtp.example.edu:587", gotAddr)
	assert.Equal(t, "netprofile@example.edu", gotFrom)
	assert.Equal(t, []string{"secops@example.edu", "noc@example.edu"}, gotTo)

	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "To: secops@example.edu, noc@example.edu\r\n"))
	assert.Contains(t, msg, "Subject: Security Summary\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<h1>hi</h1>")
}

func TestEmailNotifier_Errors(t *testing.T) {
	n := NewEmailNotifier(config.SMTPConfig{Host: "h", Port: 25})
	assert.ErrorContains(t, n.Send("s", "b"), "no recipients")

	n = NewEmailNotifier(config.SMTPConfig{Host: "h", Port: 25, To: "a@b"})
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.ErrorContains(t, n.Send("s", "b"), "refused")
}
