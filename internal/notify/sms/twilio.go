package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"authcore/internal/notify"
)

// TwilioSender sends SMS through Twilio's Messages API.
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioSender returns a Twilio gateway for the account.
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, fromNumber: fromNumber}
}

// Send implements notify.Gateway. The Twilio client takes no context.
func (t *TwilioSender) Send(_ context.Context, msg notify.Message) error {
	if t.fromNumber == "" {
		return fmt.Errorf("sms: twilio from number not configured")
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.Recipient)
	params.SetFrom(t.fromNumber)
	params.SetBody(msg.Body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("sms: twilio send failed: %w", err)
	}
	return nil
}
