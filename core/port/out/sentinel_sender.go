package out

import "context"

// =============================================================================
// Outbound delivery channel ports
// =============================================================================

// PushMessage is a device-level push payload.
type PushMessage struct {
	TargetUserID string `json:"target_user_id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	Priority     string `json:"priority"` // normal, high
}

// EmailMessage is a templated alert email payload.
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// SMSMessage is used only for the most urgent alerts.
type SMSMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// PushSenderPort delivers push notifications.
type PushSenderPort interface {
	SendPush(ctx context.Context, msg *PushMessage) error
}

// EmailSenderPort delivers alert emails.
type EmailSenderPort interface {
	SendEmail(ctx context.Context, msg *EmailMessage) error
}

// SMSSenderPort delivers SMS messages.
type SMSSenderPort interface {
	SendSMS(ctx context.Context, msg *SMSMessage) error
}
