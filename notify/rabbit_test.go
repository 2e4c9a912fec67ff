package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRabbitMQNotifier_DeclaresTopology(t *testing.T) {
	dialer := NewMockAMQPDialer()
	cfg := DefaultRabbitMQConfig()

	notifier, err := NewRabbitMQNotifierWithDialer(cfg, dialer)
	require.NoError(t, err)
	defer notifier.Close()

	ch := dialer.GetMockChannel()
	require.NotNil(t, ch)
	assert.Equal(t, cfg.URL, dialer.LastURL)
	assert.Equal(t, []string{"emailExchange"}, ch.DeclaredExchanges)
	assert.ElementsMatch(t, []string{"emailQueue", "passwordResetQueue"}, ch.DeclaredQueues)
	assert.Equal(t, "emailRoutingKey", ch.Bindings["emailQueue"])
	assert.Equal(t, "passwordResetRoutingKey", ch.Bindings["passwordResetQueue"])
}

func TestNewRabbitMQNotifier_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		dialer func() *MockAMQPDialer
	}{
		{
			name: "DialError",
			dialer: func() *MockAMQPDialer {
				return &MockAMQPDialer{DialErr: boom}
			},
		},
		{
			name: "ChannelError",
			dialer: func() *MockAMQPDialer {
				return &MockAMQPDialer{MockConnection: &MockAMQPConnection{ChannelErr: boom}}
			},
		},
		{
			name: "ExchangeDeclareError",
			dialer: func() *MockAMQPDialer {
				d := NewMockAMQPDialer()
				d.GetMockChannel().ExchangeDeclareErr = boom
				return d
			},
		},
		{
			name: "QueueBindError",
			dialer: func() *MockAMQPDialer {
				d := NewMockAMQPDialer()
				d.GetMockChannel().QueueBindErr = boom
				return d
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := tt.dialer()
			notifier, err := NewRabbitMQNotifierWithDialer(DefaultRabbitMQConfig(), dialer)
			assert.Error(t, err)
			assert.Nil(t, notifier)

			if conn, ok := dialer.MockConnection.(*MockAMQPConnection); ok && dialer.DialErr == nil {
				assert.True(t, conn.CloseCalled, "connection should be closed on failure")
			}
		})
	}
}

func TestRabbitMQNotifier_Publish(t *testing.T) {
	dialer := NewMockAMQPDialer()
	notifier, err := NewRabbitMQNotifierWithDialer(DefaultRabbitMQConfig(), dialer)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, notifier.SendVerificationCode(ctx, "alice@example.com", "123456"))
	require.NoError(t, notifier.SendPasswordReset(ctx, "alice@example.com", "reset-token"))

	ch := dialer.GetMockChannel()
	require.Len(t, ch.PublishedMessages, 2)
	assert.Equal(t, []string{"emailRoutingKey", "passwordResetRoutingKey"}, ch.PublishedKeys)
	assert.Equal(t, "emailExchange", ch.LastExchange)

	var event Event
	require.NoError(t, json.Unmarshal(ch.PublishedMessages[0].Body, &event))
	assert.Equal(t, Event{Kind: KindVerification, Recipient: "alice@example.com", Secret: "123456"}, event)
	assert.Equal(t, "application/json", ch.PublishedMessages[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.PublishedMessages[0].DeliveryMode)
}

func TestRabbitMQNotifier_PublishErrors(t *testing.T) {
	dialer := NewMockAMQPDialer()
	notifier, err := NewRabbitMQNotifierWithDialer(DefaultRabbitMQConfig(), dialer)
	require.NoError(t, err)

	err = notifier.Publish(context.Background(), Event{Kind: "sms", Recipient: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	dialer.GetMockChannel().PublishErr = errors.New("channel closed")
	err = notifier.SendVerificationCode(context.Background(), "a@example.com", "000000")
	assert.ErrorIs(t, err, ErrPublishFailed)
}

func TestRabbitMQNotifier_Close(t *testing.T) {
	dialer := NewMockAMQPDialer()
	notifier, err := NewRabbitMQNotifierWithDialer(DefaultRabbitMQConfig(), dialer)
	require.NoError(t, err)

	assert.NoError(t, notifier.Close())
	assert.True(t, dialer.GetMockChannel().CloseCalled)
	assert.True(t, dialer.MockConnection.(*MockAMQPConnection).CloseCalled)

	empty := &RabbitMQNotifier{}
	assert.NoError(t, empty.Close())
}
