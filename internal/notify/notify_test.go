package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spotseeker/apiserver/internal/mq"
	"github.com/spotseeker/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
}

func (r *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	r.channel, r.data, r.attrs = channel, data, attrs
	return "id-1", nil
}

func (r *recordingBackend) Subscribe(context.Context, string, mq.Handler) error { return nil }

func (r *recordingBackend) Close() error { return nil }

func TestPublisher_Registered(t *testing.T) {
	backend := &recordingBackend{}
	p := NewPublisher(backend, "identity", "")

	err := p.Registered(context.Background(), types.Account{
		ID: 3, Email: "jane@example.com", Name: "Jane Doe", PhoneNo: "0771234567", VerificationMethod: "sms",
	})
	require.NoError(t, err)

	assert.Equal(t, "identity", backend.channel)
	assert.Equal(t, EventRegistered, backend.attrs["event"])

	var got Event
	require.NoError(t, json.Unmarshal(backend.data, &got))
	assert.Equal(t, int64(3), got.AccountID)
	assert.Equal(t, "sms", got.VerificationMethod)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestPublisher_PasswordResetRequested(t *testing.T) {
	backend := &recordingBackend{}
	p := NewPublisher(backend, "identity", "https://app.spotseeker.lk/reset-password")

	expires := time.Now().Add(time.Hour)
	err := p.PasswordResetRequested(context.Background(), types.Account{ID: 3, Email: "jane+x@example.com"}, "tok123", expires)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(backend.data, &got))
	assert.Equal(t, EventPasswordResetRequested, got.Event)
	assert.Equal(t, "tok123", got.Token)
	assert.Equal(t, "https://app.spotseeker.lk/reset-password?email=jane%2Bx%40example.com&token=tok123", got.ResetURL)
}
