package main

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-IP limiter for the verify endpoint.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientWindow),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from the given IP fits in its window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cw, ok := rl.clients[ip]
	if !ok || now.Sub(cw.windowStart) >= rl.window {
		rl.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if cw.count >= rl.limit {
		return false
	}
	cw.count++
	return true
}

// cleanupLoop drops windows that have long expired so the map does not
// grow with one entry per client IP ever seen.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-2 * rl.window)
		for ip, cw := range rl.clients {
			if cw.windowStart.Before(cutoff) {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}
