// Package ratelimit throttles WebSocket handshakes per client IP.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default limiter values.
const (
	DefaultCleanupInterval = time.Minute
	DefaultEntryTTL        = time.Minute
)

// Config configures a Limiter.
type Config struct {
	Rate            float64       // handshakes per second per client
	Burst           int           // bucket capacity (default: max(1, 2*Rate))
	TrustedProxies  []string      // CIDRs or IPs allowed to set X-Forwarded-For
	CleanupInterval time.Duration // how often idle clients are forgotten
	EntryTTL        time.Duration // idle time after which a client is forgotten
}

type bucket struct {
	lim *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
}

// Limiter keeps a rate.Limiter per client IP.
type Limiter struct {
	rate     float64
	burst    int
	proxies  []*net.IPNet
	entryTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// New creates a Limiter and starts its cleanup loop. Call Stop to end it.
func New(cfg Config) (*Limiter, error) {
	return newLimiter(cfg, time.Now)
}

func newLimiter(cfg Config, now func() time.Time) (*Limiter, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %v", cfg.Rate)
	}
	proxies, err := ParseProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.Rate*2))
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}

	l := &Limiter{
		rate:     cfg.Rate,
		burst:    burst,
		proxies:  proxies,
		entryTTL: ttl,
		now:      now,
		buckets:  make(map[string]*bucket),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go l.cleanup(interval)
	return l, nil
}

// ParseProxies parses CIDRs or bare IPs into networks.
func ParseProxies(specs []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if _, n, err := net.ParseCIDR(s); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", s)
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// Allow takes a token for ip. When none is left it reports how long until
// the next one.
func (l *Limiter) Allow(ip string) (allowed bool, remaining int, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.buckets[ip] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, max(0, int(b.lim.TokensAt(now))), 0
}

// Clients returns the number of tracked client IPs.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ClientIP returns the address a request is attributed to. Forwarding
// headers are honored only when the direct peer is a trusted proxy.
func (l *Limiter) ClientIP(r *http.Request) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !l.trusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return remote
}

func (l *Limiter) trusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range l.proxies {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.stopped
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(l.stopped)

	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

// prune forgets clients idle for longer than the entry TTL.
func (l *Limiter) prune() {
	cutoff := l.now().Add(-l.entryTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, b := range l.buckets {
		b.mu.Lock()
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
		b.mu.Unlock()
	}
}
