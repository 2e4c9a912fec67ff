package core

import (
	"context"
	"time"
)

const dayLayout = "2006-01-02"

// DailyStats aggregates one UTC day of activity.
type DailyStats struct {
	Date             string `json:"date"`
	SuccessfulLogins int    `json:"successful_logins"`
	FailedLogins     int    `json:"failed_logins"`
	Registrations    int    `json:"registrations"`
	BlacklistedIPs   int    `json:"blacklisted_ips"`
}

// Monitor computes activity reports from storage.
type Monitor struct {
	storage Storage
	now     func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(storage Storage) *Monitor {
	return &Monitor{storage: storage, now: time.Now}
}

// DailyStats returns one entry per day from the earliest recorded activity up to today.
// Days without activity are included with zero counts.
func (m *Monitor) DailyStats(ctx context.Context) ([]DailyStats, error) {
	start, err := m.earliest(ctx)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return []DailyStats{}, nil
	}

	first := truncateDay(*start)
	actionCounts, err := m.storage.CountAuditEventsByDay(ctx, first)
	if err != nil {
		return nil, infraError("count audit events by day", err)
	}
	blacklistCounts, err := m.storage.CountBlacklistEntriesByDay(ctx, first)
	if err != nil {
		return nil, infraError("count blacklist entries by day", err)
	}

	byDay := make(map[string]*DailyStats)
	var stats []DailyStats
	today := truncateDay(m.now())
	for day := first; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		stats = append(stats, DailyStats{Date: key, BlacklistedIPs: blacklistCounts[key]})
	}
	for i := range stats {
		byDay[stats[i].Date] = &stats[i]
	}

	for _, row := range actionCounts {
		entry, ok := byDay[row.Day]
		if !ok {
			continue
		}
		switch row.Action {
		case ActionSuccessfulLogin:
			entry.SuccessfulLogins += row.Count
		case ActionFailedLogin:
			entry.FailedLogins += row.Count
		case ActionSuccessfulRegistration:
			entry.Registrations += row.Count
		}
	}

	return stats, nil
}

func (m *Monitor) earliest(ctx context.Context) (*time.Time, error) {
	lookups := []struct {
		op string
		fn func(context.Context) (*time.Time, error)
	}{
		{"earliest audit timestamp", m.storage.EarliestAuditTimestamp},
		{"earliest account timestamp", m.storage.EarliestAccountTimestamp},
		{"earliest blacklist timestamp", m.storage.EarliestBlacklistTimestamp},
	}

	var earliest *time.Time
	for _, lookup := range lookups {
		ts, err := lookup.fn(ctx)
		if err != nil {
			return nil, infraError(lookup.op, err)
		}
		if ts != nil && (earliest == nil || ts.Before(*earliest)) {
			earliest = ts
		}
	}
	return earliest, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
