package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Message is a push notification payload.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushSender delivers a message to a set of device tokens.
type PushSender interface {
	Send(ctx context.Context, tokens []string, msg Message, ttl time.Duration) error
}

// TokenSource looks up the device tokens registered for a user.
type TokenSource interface {
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
}

// PushNotifier resolves a user's devices and sends them a message, both on
// the dispatcher.
type PushNotifier struct {
	dispatcher *Dispatcher
	sender     PushSender
	tokens     TokenSource
	ttl        time.Duration
}

// NewPushNotifier creates a new PushNotifier.
func NewPushNotifier(dispatcher *Dispatcher, sender PushSender, tokens TokenSource, ttl time.Duration) *PushNotifier {
	return &PushNotifier{dispatcher: dispatcher, sender: sender, tokens: tokens, ttl: ttl}
}

// NotifyUser schedules msg for every device of userID and returns at once.
func (n *PushNotifier) NotifyUser(userID string, msg Message) {
	n.dispatcher.Submit("push:"+msg.Title, func(ctx context.Context) error {
		tokens, err := n.tokens.DeviceTokens(ctx, userID)
		if err != nil {
			return fmt.Errorf("load device tokens for %s: %w", userID, err)
		}
		if len(tokens) == 0 {
			return nil
		}
		return n.sender.Send(ctx, tokens, msg, n.ttl)
	})
}

// fcmBatchSize is the most tokens one multicast request may carry.
const fcmBatchSize = 500

// multicastClient is the part of *messaging.Client FCMSender uses.
type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender delivers messages through the Firebase Cloud Messaging HTTP v1 API.
type FCMSender struct {
	client multicastClient
	now    func() time.Time
}

// NewFCMSender authenticates with the service account in credentialsFile.
// projectID may be empty when the credentials name the project.
func NewFCMSender(ctx context.Context, credentialsFile, projectID string) (*FCMSender, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return newFCMSender(client), nil
}

func newFCMSender(client multicastClient) *FCMSender {
	return &FCMSender{client: client, now: time.Now}
}

// Send implements PushSender. It fails only when no device accepted the
// message.
func (s *FCMSender) Send(ctx context.Context, tokens []string, msg Message, ttl time.Duration) error {
	var delivered, failed int
	var lastErr error
	for start := 0; start < len(tokens); start += fcmBatchSize {
		end := start + fcmBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		resp, err := s.client.SendEachForMulticast(ctx, s.multicast(tokens[start:end], msg, ttl))
		if err != nil {
			return fmt.Errorf("send push: %w", err)
		}
		delivered += resp.SuccessCount
		failed += resp.FailureCount
		for _, r := range resp.Responses {
			if r != nil && r.Error != nil {
				lastErr = r.Error
			}
		}
	}
	if delivered == 0 && failed > 0 {
		return fmt.Errorf("push rejected for all %d devices: %w", failed, lastErr)
	}
	return nil
}

func (s *FCMSender) multicast(tokens []string, msg Message, ttl time.Duration) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens:       tokens,
		Data:         msg.Data,
		Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
		Android: &messaging.AndroidConfig{
			TTL:      &ttl,
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-expiration": strconv.FormatInt(s.now().Add(ttl).Unix(), 10),
				"apns-priority":   "10",
			},
		},
	}
}

// LogSender only logs messages. It stands in for FCM when no credentials
// are configured.
type LogSender struct {
	Logger zerolog.Logger
}

// Send implements PushSender.
func (s LogSender) Send(_ context.Context, tokens []string, msg Message, ttl time.Duration) error {
	s.Logger.Info().
		Int("devices", len(tokens)).
		Str("title", msg.Title).
		Dur("ttl", ttl).
		Msg("push notification (not delivered, no credentials)")
	return nil
}
