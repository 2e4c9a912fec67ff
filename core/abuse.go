package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// AbuseConfig configures the periodic abuse scan.
type AbuseConfig struct {
	Interval      time.Duration // how often the scan runs
	MaxRequests   int           // IPs with more events than this in the window are blocked
	WindowMinutes int
}

// DefaultAbuseConfig scans every minute for IPs with more than 100 events in the last minute.
func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{
		Interval:      60 * time.Second,
		MaxRequests:   100,
		WindowMinutes: 1,
	}
}

// AbuseScheduler periodically blacklists IPs whose audit volume exceeds a threshold.
// It shares no memory with request handlers; all coordination goes through storage.
type AbuseScheduler struct {
	audit  *AuditTrail
	gate   *BlacklistGate
	config AbuseConfig
	now    func() time.Time
}

// NewAbuseScheduler creates a scheduler. Zero config fields take the defaults.
func NewAbuseScheduler(audit *AuditTrail, gate *BlacklistGate, config AbuseConfig) *AbuseScheduler {
	defaults := DefaultAbuseConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.WindowMinutes <= 0 {
		config.WindowMinutes = defaults.WindowMinutes
	}

	return &AbuseScheduler{
		audit:  audit,
		gate:   gate,
		config: config,
		now:    time.Now,
	}
}

// Run scans on every tick until ctx is cancelled.
func (s *AbuseScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	slog.Info("Abuse scheduler started",
		"interval", s.config.Interval,
		"max_requests", s.config.MaxRequests,
		"window_minutes", s.config.WindowMinutes)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Abuse scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.AnalyzeAndBlock(ctx, s.config.MaxRequests, s.config.WindowMinutes); err != nil {
				slog.Error("Abuse scan failed", "error", err)
			}
		}
	}
}

// AnalyzeAndBlock blacklists every IP with more than maxRequests audit events in the last
// windowMinutes and returns the IPs newly blocked. A failure on one IP does not stop the others.
func (s *AbuseScheduler) AnalyzeAndBlock(ctx context.Context, maxRequests, windowMinutes int) ([]string, error) {
	start := time.Now()
	defer func() {
		abuseScanDuration.Observe(time.Since(start).Seconds())
	}()

	windowStart := s.now().Add(-time.Duration(windowMinutes) * time.Minute)
	counts, err := s.audit.CountByIPSince(ctx, windowStart)
	if err != nil {
		return nil, err
	}

	suspects := make([]string, 0)
	for ip, count := range counts {
		if ip != "" && count > maxRequests {
			suspects = append(suspects, ip)
		}
	}
	sort.Strings(suspects)

	reason := fmt.Sprintf("exceeded %d requests in %d minutes", maxRequests, windowMinutes)
	var blocked []string
	for _, ip := range suspects {
		created, err := s.gate.block(ctx, ip, reason, "abuse_scan")
		if err != nil {
			slog.Error("Failed to blacklist IP", "ip_address", ip, "requests", counts[ip], "error", err)
			continue
		}
		if created {
			blocked = append(blocked, ip)
		}
	}

	if len(suspects) > 0 {
		slog.Info("Abuse scan complete", "suspects", len(suspects), "blocked", len(blocked))
	}
	return blocked, nil
}
