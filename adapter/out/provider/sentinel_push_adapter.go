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

const fcmDefaultEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// FCMPushAdapter implements out.PushSenderPort against the FCM HTTP v1 API.
type FCMPushAdapter struct {
	client    *http.Client
	endpoint  string
	serverKey string
}

// NewFCMPushAdapter creates a new FCM push adapter.
func NewFCMPushAdapter(projectID, serverKey string) *FCMPushAdapter {
	return &FCMPushAdapter{
		client:    &http.Client{Timeout: 10 * time.Second},
		endpoint:  fmt.Sprintf(fcmDefaultEndpoint, projectID),
		serverKey: serverKey,
	}
}

var _ out.PushSenderPort = (*FCMPushAdapter)(nil)

type fcmMessage struct {
	Message struct {
		Topic        string            `json:"topic,omitempty"`
		Notification fcmNotification   `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
		Android      *fcmAndroid       `json:"android,omitempty"`
	} `json:"message"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

// SendPush delivers one push notification, addressed by user topic.
func (a *FCMPushAdapter) SendPush(ctx context.Context, msg *out.PushMessage) error {
	var payload fcmMessage
	payload.Message.Topic = "user-" + msg.TargetUserID
	payload.Message.Notification = fcmNotification{Title: msg.Title, Body: msg.Body}
	if msg.Priority != "" {
		payload.Message.Android = &fcmAndroid{Priority: msg.Priority}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.serverKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("fcm error: %d - %s", resp.StatusCode, string(body))
	}

	return nil
}
