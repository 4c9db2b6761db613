package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spotseeker/apiserver/internal/mq"
	"github.com/spotseeker/apiserver/types"
)

// Event names, also sent as the "event" attribute.
const (
	EventRegistered             = "account.registered"
	EventPasswordResetRequested = "password.reset_requested"
	EventPasswordReset          = "password.reset"
)

// Event is the JSON body of every notification.
type Event struct {
	Event              string    `json:"event"`
	AccountID          int64     `json:"account_id"`
	Email              string    `json:"email"`
	Name               string    `json:"name,omitempty"`
	PhoneNo            string    `json:"phone_no,omitempty"`
	VerificationMethod string    `json:"verification_method,omitempty"`
	Token              string    `json:"token,omitempty"`
	ResetURL           string    `json:"reset_url,omitempty"`
	ExpiresAt          time.Time `json:"expires_at,omitzero"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Publisher turns identity events into messages on a single channel.
type Publisher struct {
	backend  mq.Backend
	channel  string
	resetURL string
}

func NewPublisher(backend mq.Backend, channel, resetURL string) *Publisher {
	return &Publisher{backend: backend, channel: channel, resetURL: resetURL}
}

// Registered asks downstream consumers to send the mobile verification code.
func (p *Publisher) Registered(ctx context.Context, account types.Account) error {
	return p.publish(ctx, Event{
		Event:              EventRegistered,
		AccountID:          account.ID,
		Email:              account.Email,
		Name:               account.Name,
		PhoneNo:            account.PhoneNo,
		VerificationMethod: account.VerificationMethod,
	})
}

// PasswordResetRequested carries the plain reset token and the link built from it.
func (p *Publisher) PasswordResetRequested(ctx context.Context, account types.Account, token string, expiresAt time.Time) error {
	return p.publish(ctx, Event{
		Event:     EventPasswordResetRequested,
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Token:     token,
		ResetURL:  p.resetLink(token, account.Email),
		ExpiresAt: expiresAt,
	})
}

func (p *Publisher) PasswordReset(ctx context.Context, account types.Account) error {
	return p.publish(ctx, Event{
		Event:     EventPasswordReset,
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
	})
}

func (p *Publisher) publish(ctx context.Context, event Event) error {
	event.OccurredAt = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Event, err)
	}
	if _, err := p.backend.Publish(ctx, p.channel, data, map[string]string{"event": event.Event}); err != nil {
		return fmt.Errorf("publish %s: %w", event.Event, err)
	}
	return nil
}

func (p *Publisher) resetLink(token, email string) string {
	if p.resetURL == "" {
		return ""
	}
	u, err := url.Parse(p.resetURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String()
}
