package core

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// BlacklistCache is an optional read-through cache of blocked IPs.
type BlacklistCache interface {
	Contains(ctx context.Context, ip string) (bool, error)
	Add(ctx context.Context, ip string) error
}

// BlacklistGate answers whether a source IP is blocked and records new blocks.
type BlacklistGate struct {
	storage Storage
	cache   BlacklistCache
}

// NewBlacklistGate creates a gate. cache may be nil.
func NewBlacklistGate(storage Storage, cache BlacklistCache) *BlacklistGate {
	return &BlacklistGate{storage: storage, cache: cache}
}

// IsBlocked reports whether ip has a blacklist entry. Cache failures fall back to storage.
func (g *BlacklistGate) IsBlocked(ctx context.Context, ip string) (bool, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false, nil
	}

	if g.cache != nil {
		hit, err := g.cache.Contains(ctx, ip)
		if err != nil {
			slog.Error("Blacklist cache lookup failed", "ip_address", ip, "error", err)
		} else if hit {
			return true, nil
		}
	}

	entry, err := g.storage.GetBlacklistEntry(ctx, ip)
	if err != nil {
		return false, infraError("get blacklist entry", err)
	}
	if entry == nil {
		return false, nil
	}

	g.warmCache(ctx, ip)
	return true, nil
}

// Block adds ip to the blacklist. It reports false when the IP was already blocked.
func (g *BlacklistGate) Block(ctx context.Context, ip, reason string) (bool, error) {
	return g.block(ctx, ip, reason, "manual")
}

// List returns blacklist entries, newest first.
func (g *BlacklistGate) List(ctx context.Context, limit, offset int) ([]*BlacklistEntry, error) {
	entries, err := g.storage.ListBlacklistEntries(ctx, limit, offset)
	if err != nil {
		return nil, infraError("list blacklist entries", err)
	}
	return entries, nil
}

func (g *BlacklistGate) block(ctx context.Context, ip, reason, source string) (bool, error) {
	entry := &BlacklistEntry{
		IPAddress: strings.TrimSpace(ip),
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	created, err := g.storage.CreateBlacklistEntry(ctx, entry)
	if err != nil {
		return false, infraError("create blacklist entry", err)
	}

	g.warmCache(ctx, entry.IPAddress)
	if created {
		blacklistInsertionsTotal.WithLabelValues(source).Inc()
		slog.Warn("IP address blacklisted", "ip_address", entry.IPAddress, "reason", reason, "source", source)
	}
	return created, nil
}

func (g *BlacklistGate) warmCache(ctx context.Context, ip string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Add(ctx, ip); err != nil {
		slog.Error("Failed to cache blacklisted IP", "ip_address", ip, "error", err)
	}
}
