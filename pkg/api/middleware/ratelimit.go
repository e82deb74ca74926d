// ScopeTerm
// Copyright (c) 2026 The ScopeTerm Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of ScopeTerm.
//
// ScopeTerm is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ScopeTerm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ScopeTerm.  If not, see <http://www.gnu.org/licenses/>.

package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api/models"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
	"golang.org/x/time/rate"
)

const (
	// RequestsPerSecond lets a plot poll /api/series several times a second.
	RequestsPerSecond = 10
	BurstSize         = 50

	idleClientAge = 10 * time.Minute
	pruneInterval = 5 * time.Minute

	codeRateLimited = -32029
)

// ClientIP returns the address part of a RemoteAddr, which may or may not
// carry a port.
func ClientIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return net.ParseIP(remoteAddr)
	}
	return net.ParseIP(host)
}

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// ClientLimiter shares one token bucket per client address between HTTP
// requests and websocket messages.
type ClientLimiter struct {
	clock   clockwork.Clock
	buckets map[string]*bucket
	mu      syncutil.Mutex
}

// NewClientLimiter uses the real clock when clock is nil.
func NewClientLimiter(clock clockwork.Clock) *ClientLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClientLimiter{
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

// Bucket returns the limiter for addr, creating it on first use.
func (cl *ClientLimiter) Bucket(addr string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.buckets[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(RequestsPerSecond, BurstSize)}
		cl.buckets[addr] = b
	}
	b.lastUsed = cl.clock.Now()
	return b.lim
}

// Allow takes one token from addr's bucket.
func (cl *ClientLimiter) Allow(addr string) bool {
	return cl.Bucket(addr).AllowN(cl.clock.Now(), 1)
}

// Prune drops buckets idle for longer than ten minutes and reports how
// many went.
func (cl *ClientLimiter) Prune() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := cl.clock.Now().Add(-idleClientAge)
	n := 0
	for addr, b := range cl.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(cl.buckets, addr)
			n++
		}
	}
	return n
}

// RunPruner prunes on a timer until ctx ends.
func (cl *ClientLimiter) RunPruner(ctx context.Context) {
	go func() {
		ticker := cl.clock.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if n := cl.Prune(); n > 0 {
					log.Debug().Int("clients", n).Msg("pruned idle rate limit buckets")
				}
			}
		}
	}()
}

// LimitHTTP answers 429 once a client's bucket is empty.
func LimitHTTP(cl *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := ClientIP(r.RemoteAddr).String()
			if cl.Allow(addr) {
				next.ServeHTTP(w, r)
				return
			}
			log.Warn().Str("client", addr).Str("path", r.URL.Path).Msg("api request throttled")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		})
	}
}

// rejection is the JSON-RPC reply to a throttled message. The id is null
// because the message is never parsed.
type rejection struct {
	ID      *string             `json:"id"`
	Error   *models.ErrorObject `json:"error"`
	JSONRPC string              `json:"jsonrpc"`
}

// LimitMessages wraps a melody message handler with the same buckets.
func LimitMessages(
	cl *ClientLimiter,
	handler func(*melody.Session, []byte),
) func(*melody.Session, []byte) {
	return func(s *melody.Session, msg []byte) {
		addr := ClientIP(s.Request.RemoteAddr).String()
		if cl.Allow(addr) {
			handler(s, msg)
			return
		}
		log.Warn().Str("client", addr).Int("bytes", len(msg)).Msg("websocket message throttled")

		reply, err := json.Marshal(rejection{
			JSONRPC: "2.0",
			Error:   &models.ErrorObject{Code: codeRateLimited, Message: "rate limited"},
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to encode throttle reply")
			return
		}
		if err := s.Write(reply); err != nil {
			log.Debug().Err(err).Msg("failed to send throttle reply")
		}
	}
}
