package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sentinel_server/core/port/out"
)

const twilioMessagesURL = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"

// TwilioSMSAdapter implements out.SMSSenderPort via the Twilio REST API.
type TwilioSMSAdapter struct {
	client     *http.Client
	accountSID string
	authToken  string
	from       string
}

// NewTwilioSMSAdapter creates a new Twilio SMS adapter.
func NewTwilioSMSAdapter(accountSID, authToken, fromNumber string) *TwilioSMSAdapter {
	return &TwilioSMSAdapter{
		client:     &http.Client{Timeout: 10 * time.Second},
		accountSID: accountSID,
		authToken:  authToken,
		from:       fromNumber,
	}
}

var _ out.SMSSenderPort = (*TwilioSMSAdapter)(nil)

// SendSMS delivers one SMS. Twilio takes form-encoded bodies, not JSON.
func (a *TwilioSMSAdapter) SendSMS(ctx context.Context, msg *out.SMSMessage) error {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", a.from)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf(twilioMessagesURL, a.accountSID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.accountSID, a.authToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twilio error: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}
