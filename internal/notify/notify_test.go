package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/appledger/internal/types"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRecordedPublishesOnePerApplication(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "appledger"}
	apps := []types.Application{
		{Company: "Acme Corp", RoleTitle: "Backend Engineer", JobID: "4821", MessageID: "m1", DateApplied: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Company: "Globex", MessageID: "m2"},
	}

	require.NoError(t, p.Recorded(context.Background(), apps))
	require.Len(t, ch.sent, 2)
	assert.Equal(t, "appledger", ch.sent[0].exchange)
	assert.Equal(t, RoutingKeyRecorded, ch.sent[0].key)
	assert.Equal(t, "m1", ch.sent[0].msg.MessageId)
	assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &got))
	assert.Equal(t, "Acme Corp", got["company"])
	assert.Equal(t, "2025-03-01", got["date_applied"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestRecordedStopsOnError(t *testing.T) {
	boom := errors.New("channel closed")
	p := &Publisher{ch: &fakeChannel{err: boom}, exchange: "appledger"}
	err := p.Recorded(context.Background(), []types.Application{{MessageID: "m1"}})
	assert.ErrorIs(t, err, boom)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Recorded(context.Background(), []types.Application{{MessageID: "m1"}}))
	assert.NoError(t, n.Close())
}
