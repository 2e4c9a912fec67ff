package notify

import (
	"sync"

	"github.com/streadway/amqp"
)

// MockAMQPConnection is a mock implementation of AMQPConnection for testing
type MockAMQPConnection struct {
	MockChannel AMQPChannel
	ChannelErr  error
	CloseErr    error

	ChannelCalled bool
	CloseCalled   bool
}

func (m *MockAMQPConnection) Channel() (AMQPChannel, error) {
	m.ChannelCalled = true
	if m.ChannelErr != nil {
		return nil, m.ChannelErr
	}
	return m.MockChannel, nil
}

func (m *MockAMQPConnection) Close() error {
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPChannel records declarations and published messages
type MockAMQPChannel struct {
	mu sync.Mutex

	PublishedMessages []amqp.Publishing
	PublishedKeys     []string
	DeclaredExchanges []string
	DeclaredQueues    []string
	Bindings          map[string]string // queue -> routing key

	// Deliveries feeds Consume, keyed by queue name
	Deliveries map[string]chan amqp.Delivery

	ExchangeDeclareErr error
	QueueDeclareErr    error
	QueueBindErr       error
	PublishErr         error
	ConsumeErr         error
	CloseErr           error

	PublishCalled bool
	CloseCalled   bool
	LastExchange  string
	LastKey       string
}

func (m *MockAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExchangeDeclareErr != nil {
		return m.ExchangeDeclareErr
	}
	m.DeclaredExchanges = append(m.DeclaredExchanges, name)
	return nil
}

func (m *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueueDeclareErr != nil {
		return amqp.Queue{}, m.QueueDeclareErr
	}
	m.DeclaredQueues = append(m.DeclaredQueues, name)
	return amqp.Queue{Name: name}, nil
}

func (m *MockAMQPChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueueBindErr != nil {
		return m.QueueBindErr
	}
	if m.Bindings == nil {
		m.Bindings = make(map[string]string)
	}
	m.Bindings[name] = key
	return nil
}

func (m *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalled = true
	m.LastExchange = exchange
	m.LastKey = key
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishedMessages = append(m.PublishedMessages, msg)
	m.PublishedKeys = append(m.PublishedKeys, key)
	return nil
}

func (m *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	if m.Deliveries == nil {
		m.Deliveries = make(map[string]chan amqp.Delivery)
	}
	ch, ok := m.Deliveries[queue]
	if !ok {
		ch = make(chan amqp.Delivery, 16)
		m.Deliveries[queue] = ch
	}
	return ch, nil
}

func (m *MockAMQPChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return m.CloseErr
}

// MockAMQPDialer is a mock implementation of AMQPDialer for testing
type MockAMQPDialer struct {
	MockConnection AMQPConnection
	DialErr        error
	DialCalled     bool
	LastURL        string
}

func (m *MockAMQPDialer) Dial(url string) (AMQPConnection, error) {
	m.DialCalled = true
	m.LastURL = url
	if m.DialErr != nil {
		return nil, m.DialErr
	}
	return m.MockConnection, nil
}

// NewMockAMQPDialer creates a mock dialer with a working connection and channel
func NewMockAMQPDialer() *MockAMQPDialer {
	return &MockAMQPDialer{
		MockConnection: &MockAMQPConnection{
			MockChannel: &MockAMQPChannel{},
		},
	}
}

// GetMockChannel returns the mock channel behind the dialer
func (m *MockAMQPDialer) GetMockChannel() *MockAMQPChannel {
	conn, ok := m.MockConnection.(*MockAMQPConnection)
	if !ok || conn.MockChannel == nil {
		return nil
	}
	ch, _ := conn.MockChannel.(*MockAMQPChannel)
	return ch
}
