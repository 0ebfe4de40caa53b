package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"sentinel_server/core/port/out"
)

const sendgridSendURL = "https://api.sendgrid.com/v3/mail/send"

// SendGridEmailAdapter implements out.EmailSenderPort via the SendGrid v3 API.
type SendGridEmailAdapter struct {
	client *http.Client
	apiKey string
	from   string
}

// NewSendGridEmailAdapter creates a new SendGrid email adapter.
func NewSendGridEmailAdapter(apiKey, fromAddress string) *SendGridEmailAdapter {
	return &SendGridEmailAdapter{
		client: &http.Client{Timeout: 15 * time.Second},
		apiKey: apiKey,
		from:   fromAddress,
	}
}

var _ out.EmailSenderPort = (*SendGridEmailAdapter)(nil)

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMail struct {
	Personalizations []struct {
		To []sgAddress `json:"to"`
	} `json:"personalizations"`
	From    sgAddress   `json:"from"`
	Subject string      `json:"subject"`
	Content []sgContent `json:"content"`
}

// SendEmail delivers one email. Plain text goes first per the API's
// content-ordering rule.
func (a *SendGridEmailAdapter) SendEmail(ctx context.Context, msg *out.EmailMessage) error {
	payload := sgMail{
		From:    sgAddress{Email: a.from},
		Subject: msg.Subject,
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []sgAddress `json:"to"`
	}{To: []sgAddress{{Email: msg.To}}})

	if msg.Text != "" {
		payload.Content = append(payload.Content, sgContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		payload.Content = append(payload.Content, sgContent{Type: "text/html", Value: msg.HTML})
	}
	if len(payload.Content) == 0 {
		return fmt.Errorf("email to %s has no body", msg.To)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sendgridSendURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sendgrid error: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}
