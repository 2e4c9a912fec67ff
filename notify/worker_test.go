package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailWorker_Run(t *testing.T) {
	dialer := NewMockAMQPDialer()
	cfg := DefaultRabbitMQConfig()

	ch := dialer.GetMockChannel()
	ch.Deliveries = map[string]chan amqp.Delivery{
		cfg.VerificationQueue:  make(chan amqp.Delivery, 4),
		cfg.PasswordResetQueue: make(chan amqp.Delivery, 4),
	}

	provider := &recordingProvider{}
	worker, err := NewEmailWorkerWithDialer(cfg, dialer, NewEmailNotifier(provider, EmailConfig{}))
	require.NoError(t, err)
	defer worker.Close()

	body, err := json.Marshal(Event{Kind: KindVerification, Recipient: "carol@example.com", Secret: "222222"})
	require.NoError(t, err)
	ch.Deliveries[cfg.VerificationQueue] <- amqp.Delivery{Body: body}

	// kind falls back to the queue the event arrived on
	ch.Deliveries[cfg.PasswordResetQueue] <- amqp.Delivery{Body: []byte(`{"recipient":"carol@example.com","code":"tok"}`)}
	ch.Deliveries[cfg.PasswordResetQueue] <- amqp.Delivery{Body: []byte(`not json`)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(provider.sent()) == 2 }, 2*time.Second, 10*time.Millisecond)

	subjects := []string{provider.sent()[0].Subject, provider.sent()[1].Subject}
	assert.ElementsMatch(t, []string{"Verify your wispy-guard email address", "Reset your wispy-guard password"}, subjects)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestEmailWorker_ConsumeError(t *testing.T) {
	dialer := NewMockAMQPDialer()
	dialer.GetMockChannel().ConsumeErr = assert.AnError

	worker, err := NewEmailWorkerWithDialer(DefaultRabbitMQConfig(), dialer, NewEmailNotifier(&recordingProvider{}, EmailConfig{}))
	require.NoError(t, err)

	err = worker.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
