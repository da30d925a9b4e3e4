// Package notify delivers out-of-band messages (OTP codes, reset links) over
// email or SMS. Delivery is asynchronous: callers enqueue on a Dispatcher and
// never wait for the provider.
package notify

import (
	"context"
	"log"
	"regexp"
	"strings"
)

// Channel selects the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound notification. OTP is set for code deliveries so SMS
// providers with an OTP route can use it directly.
type Message struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
	OTP       string
}

// Gateway sends a message through one provider.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f GatewayFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

var (
	otpPattern  = regexp.MustCompile(`OTP:\s*(\d{6})`)
	linkPattern = regexp.MustCompile(`https?://\S+reset-password\?token=[0-9a-fA-F]+`)
)

// LogSink is the diagnostic fallback used when no provider is configured for a
// channel. It writes the message to the log, surfacing the OTP or reset link so
// local development works without SMTP.
type LogSink struct {
	Logger *log.Logger
}

// Send logs msg.
func (s LogSink) Send(_ context.Context, msg Message) error {
	logf := log.Printf
	if s.Logger != nil {
		logf = s.Logger.Printf
	}
	logf("notify: %s not configured, message logged: to=%s subject=%q", msg.Channel, msg.Recipient, msg.Subject)
	if code := msg.OTP; code != "" {
		logf("notify: ***** OTP for %s: %s *****", msg.Recipient, code)
	} else if m := otpPattern.FindStringSubmatch(msg.Body); m != nil {
		logf("notify: ***** OTP for %s: %s *****", msg.Recipient, m[1])
	}
	if link := linkPattern.FindString(msg.Body); link != "" {
		logf("notify: reset link for %s: %s", msg.Recipient, link)
	}
	return nil
}

// MaskRecipient hides most of an email local part or phone number for logs.
func MaskRecipient(r string) string {
	if at := strings.IndexByte(r, '@'); at > 0 {
		return r[:1] + "***" + r[at:]
	}
	if len(r) > 4 {
		return strings.Repeat("*", len(r)-4) + r[len(r)-4:]
	}
	return "***"
}
