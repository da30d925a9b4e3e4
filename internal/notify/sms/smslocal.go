// Package sms holds SMS gateways for OTP delivery.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"authcore/internal/notify"
)

const defaultTimeout = 15 * time.Second

// SMSLocalClient sends SMS via the SMS Local bulk API.
// See https://www.smslocal.com/dev/bulkV2.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send implements notify.Gateway. Messages carrying an OTP use the otp route;
// anything else is sent as plain text.
func (c *SMSLocalClient) Send(ctx context.Context, msg notify.Message) error {
	if msg.OTP != "" {
		return c.SendOTP(ctx, msg.Recipient, msg.OTP)
	}
	return c.post(ctx, map[string]interface{}{
		"route":   "q",
		"numbers": normalizePhone(msg.Recipient),
		"message": msg.Body,
	})
}

// SendOTP sends the OTP to the given phone number via SMS Local (route=otp).
// Does not log the OTP.
func (c *SMSLocalClient) SendOTP(ctx context.Context, phone, otp string) error {
	return c.post(ctx, map[string]interface{}{
		"route":     "otp",
		"numbers":   normalizePhone(phone),
		"variables": otp,
	})
}

func (c *SMSLocalClient) post(ctx context.Context, body map[string]interface{}) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// normalizePhone keeps digits only (country code + number).
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
