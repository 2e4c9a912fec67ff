package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AuditConfig controls how audit events are written.
type AuditConfig struct {
	// Async hands events to a background writer. When false, Record writes inline.
	Async bool
	// BufferSize is the capacity of the async queue. Events are dropped when it is full.
	BufferSize int
	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration
}

// DefaultAuditConfig returns the configuration used by NewAuthService.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Async:        true,
		BufferSize:   1024,
		WriteTimeout: 5 * time.Second,
	}
}

// AuditTrail records authentication events. Record never blocks on a full queue and never
// returns an error to the caller; write failures are logged and dropped.
type AuditTrail struct {
	storage Storage
	cfg     AuditConfig

	ch      chan *AuditEvent
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu is held for reading from the closed check until the event is queued, so Close
	// cannot drain the queue between the two.
	mu     sync.RWMutex
	closed bool
}

// NewAuditTrail creates an audit trail writing to storage.
func NewAuditTrail(storage Storage, cfg AuditConfig) *AuditTrail {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	a := &AuditTrail{
		storage: storage,
		cfg:     cfg,
		done:    make(chan struct{}),
	}

	if cfg.Async {
		a.ch = make(chan *AuditEvent, cfg.BufferSize)
		a.wg.Add(1)
		go a.run()
	}

	return a
}

// Record appends one event. accountID may be nil when the account could not be resolved.
func (a *AuditTrail) Record(action AuditAction, accountID *string, sourceIP string) {
	if a == nil {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	event := &AuditEvent{
		Action:    action,
		AccountID: accountID,
		IPAddress: sourceIP,
		CreatedAt: time.Now().UTC(),
	}
	auditEventsTotal.WithLabelValues(string(action)).Inc()

	if !a.cfg.Async {
		a.write(event)
		return
	}

	select {
	case a.ch <- event:
	default:
		a.dropped.Add(1)
		auditEventsDropped.Inc()
		slog.Warn("Audit queue full, dropping event", "action", action, "ip_address", sourceIP)
	}
}

// CountByIPSince returns the number of events per source IP at or after since.
func (a *AuditTrail) CountByIPSince(ctx context.Context, since time.Time) (map[string]int, error) {
	counts, err := a.storage.CountAuditEventsByIPSince(ctx, since.UTC())
	if err != nil {
		return nil, infraError("count audit events by ip", err)
	}
	return counts, nil
}

// EarliestTimestamp returns the timestamp of the oldest event, or nil when there are none.
func (a *AuditTrail) EarliestTimestamp(ctx context.Context) (*time.Time, error) {
	ts, err := a.storage.EarliestAuditTimestamp(ctx)
	if err != nil {
		return nil, infraError("earliest audit timestamp", err)
	}
	return ts, nil
}

// List returns recorded events, newest first.
func (a *AuditTrail) List(ctx context.Context, limit, offset int) ([]*AuditEvent, error) {
	events, err := a.storage.ListAuditEvents(ctx, limit, offset)
	if err != nil {
		return nil, infraError("list audit events", err)
	}
	return events, nil
}

// Dropped returns the number of events discarded because the queue was full.
func (a *AuditTrail) Dropped() uint64 {
	if a == nil {
		return 0
	}
	return a.dropped.Load()
}

// Close stops accepting events and waits for queued events to be written.
func (a *AuditTrail) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.done)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *AuditTrail) run() {
	defer a.wg.Done()

	for {
		select {
		case event := <-a.ch:
			a.write(event)
		case <-a.done:
			for {
				select {
				case event := <-a.ch:
					a.write(event)
				default:
					return
				}
			}
		}
	}
}

func (a *AuditTrail) write(event *AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
	defer cancel()

	if err := a.storage.CreateAuditEvent(ctx, event); err != nil {
		slog.Error("Failed to record audit event",
			"action", event.Action,
			"account_id", stringValue(event.AccountID),
			"ip_address", event.IPAddress,
			"error", err)
	}
}
