package saver

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
)

// MessageService is the remote surface the notifier depends on.
type MessageService interface {
	SendMessage(ctx context.Context, token string, userID, randomID int64, message, attachment string) error
}

// Notifier sends confirmation direct messages from a community to the
// initiating user.
type Notifier struct {
	api MessageService
}

// NewNotifier constructs a notifier.
func NewNotifier(api MessageService) *Notifier {
	return &Notifier{api: api}
}

// Notify delivers a direct message with a fresh idempotency key. A failure
// here says nothing about whether a post was scheduled; callers that need
// combined success must check both outcomes independently.
func (n *Notifier) Notify(ctx context.Context, communityToken string, userID int64, message string, attachments []string) error {
	randomID := int64(99999) + rand.Int64N(math.MaxInt32-99999)
	err := n.api.SendMessage(ctx, communityToken, userID, randomID, message, strings.Join(attachments, ","))
	if err != nil {
		return NotificationError{UserID: userID, Err: err}
	}
	return nil
}
