package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// OTPEmail builds the email for a login or 2FA-setup code.
func OTPEmail(to, subject, code string, ttl time.Duration) Message {
	return Message{
		Channel:   ChannelEmail,
		Recipient: to,
		Subject:   subject,
		Body:      fmt.Sprintf("<h2>Your OTP: %s</h2><p>Valid for %d minutes</p>", code, int(ttl.Minutes())),
		OTP:       code,
	}
}

// OTPSMS builds the SMS for a login or 2FA-setup code.
func OTPSMS(phone, code string, ttl time.Duration) Message {
	return Message{
		Channel:   ChannelSMS,
		Recipient: phone,
		Subject:   "OTP",
		Body:      fmt.Sprintf("Your OTP: %s. Valid for %d minutes.", code, int(ttl.Minutes())),
		OTP:       code,
	}
}

// ResetLink returns ${frontendURL}/reset-password?token=<token>.
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// ResetEmail builds the password reset email carrying link.
func ResetEmail(to, link string, ttl time.Duration) Message {
	return Message{
		Channel:   ChannelEmail,
		Recipient: to,
		Subject:   "Password Reset Request",
		Body: fmt.Sprintf(`<h2>Password Reset</h2><p>Click the link below to reset your password:</p>`+
			`<a href="%s">%s</a><p>This link expires in %d minutes.</p>`, link, link, int(ttl.Minutes())),
	}
}
