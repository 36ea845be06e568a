package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailChannel sends the formatted change body as a plain-text email via
// net/smtp. No example repo in the pack imports a third-party SMTP/mail
// client, so this one channel is the standard-library exception recorded
// in the grounding ledger.
type EmailChannel struct {
	name     string
	addr     string // "host:port"
	auth     smtp.Auth
	from     string
	to       []string
	enabled  bool
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates a channel that sends mail through the SMTP
// server at addr (host:port), authenticating with auth (nil for an
// unauthenticated relay).
func NewEmailChannel(name, addr string, auth smtp.Auth, from string, to []string) *EmailChannel {
	return &EmailChannel{
		name:     name,
		addr:     addr,
		auth:     auth,
		from:     from,
		to:       to,
		enabled:  addr != "" && from != "" && len(to) > 0,
		sendFunc: smtp.SendMail,
	}
}

func (c *EmailChannel) Name() string  { return c.name }
func (c *EmailChannel) Enabled() bool { return c.enabled }
func (c *EmailChannel) Disable()      { c.enabled = false }

func (c *EmailChannel) Send(_ context.Context, change ChangeRecord, template string) Outcome {
	body := template
	if body == "" {
		body = formatBody(change)
	}

	subject := fmt.Sprintf("[%s] version %s (%s)", change.Target, change.Version, change.Severity)
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", subject)
	msg.WriteString(body)

	if err := c.sendFunc(c.addr, c.auth, c.from, c.to, []byte(msg.String())); err != nil {
		return Outcome{Err: fmt.Errorf("%s: %w", c.name, err)}
	}

	return Outcome{OK: true}
}
