// Package timesync measures the local clock's offset against NTP servers so
// votes carry a trustworthy wall-clock timestamp.
package timesync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beevik/ntp"
)

// Defaults for Syncer.
const (
	DefaultServer   = "pool.ntp.org"
	DefaultAttempts = 3
	DefaultTimeout  = 5 * time.Second
)

// Clock stamps times with a measured NTP offset.
type Clock struct {
	offset time.Duration
	synced bool
	server string
}

// Unsynced returns a clock that uses local time as-is.
func Unsynced() *Clock {
	return &Clock{}
}

// Stamp converts a local time into corrected wall-clock time.
func (c *Clock) Stamp(t time.Time) time.Time {
	return t.Add(c.offset)
}

// Synced reports whether an NTP query succeeded.
func (c *Clock) Synced() bool {
	return c.synced
}

// Offset returns the measured offset (zero if unsynced).
func (c *Clock) Offset() time.Duration {
	return c.offset
}

// Server returns the server the offset was measured against.
func (c *Clock) Server() string {
	return c.server
}

// QueryFunc performs one NTP query.
type QueryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

// Syncer queries NTP servers with bounded retries.
type Syncer struct {
	Servers  []string
	Attempts int           // attempts per server
	Timeout  time.Duration // per query
	Backoff  time.Duration // pause between attempts
	Query    QueryFunc
}

// NewSyncer creates a syncer with defaults for any zero fields.
func NewSyncer(servers []string, attempts int, timeout time.Duration) *Syncer {
	if len(servers) == 0 {
		servers = []string{DefaultServer}
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Syncer{
		Servers:  servers,
		Attempts: attempts,
		Timeout:  timeout,
		Backoff:  time.Second,
		Query:    ntp.QueryWithOptions,
	}
}

// Sync tries each server up to Attempts times. It returns a synced clock on
// the first valid response, or an unsynced clock and the last error once all
// attempts are used. It never blocks longer than
// len(Servers) * Attempts * (Timeout + Backoff).
func (s *Syncer) Sync(ctx context.Context) (*Clock, error) {
	var lastErr error

	for _, server := range s.Servers {
		for attempt := 1; attempt <= s.Attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return Unsynced(), err
			}

			resp, err := s.Query(server, ntp.QueryOptions{Timeout: s.Timeout})
			if err == nil {
				err = resp.Validate()
			}
			if err == nil {
				log.Printf("timesync: %s offset=%v rtt=%v", server, resp.ClockOffset, resp.RTT)
				return &Clock{offset: resp.ClockOffset, synced: true, server: server}, nil
			}

			lastErr = fmt.Errorf("query %s (attempt %d/%d): %w", server, attempt, s.Attempts, err)
			log.Printf("timesync: %v", lastErr)

			if s.Backoff > 0 {
				select {
				case <-ctx.Done():
					return Unsynced(), ctx.Err()
				case <-time.After(s.Backoff):
				}
			}
		}
	}

	return Unsynced(), lastErr
}
