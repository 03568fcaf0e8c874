package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"mailprobe/internal/errors"
	"mailprobe/internal/metrics"
	"mailprobe/internal/models"
	"mailprobe/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// RelayPool selects a usable relay for dispatch and exposes the operator
// connection test.
type RelayPool interface {
	SelectRelay(ctx context.Context) (*models.RelayConfig, error)
	TestRelay(ctx context.Context, relayID int64) (models.HealthStatus, error)
}

type relayPool struct {
	store   Storage
	checker HealthChecker
	logger  *logrus.Logger

	breakerMaxFailures uint32
	breakerReset       time.Duration

	mu       sync.Mutex
	breakers map[int64]*circuitbreaker.CircuitBreaker

	// injectable for deterministic selection in tests
	randInt func(n int) int
}

func NewRelayPool(store Storage, checker HealthChecker, breakerMaxFailures int, breakerReset time.Duration, logger *logrus.Logger) RelayPool {
	return &relayPool{
		store:              store,
		checker:            checker,
		logger:             logger,
		breakerMaxFailures: uint32(breakerMaxFailures),
		breakerReset:       breakerReset,
		breakers:           make(map[int64]*circuitbreaker.CircuitBreaker),
		randInt:            rand.Intn,
	}
}

// SelectRelay returns a relay that is active, under its daily quota, and
// passing a live health probe on both legs, chosen uniformly at random.
// Returns nil without error when no relay qualifies.
func (p *relayPool) SelectRelay(ctx context.Context) (*models.RelayConfig, error) {
	relays, err := p.store.ListEligibleRelays(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "listing eligible relays failed")
	}

	var healthy []*models.RelayConfig
	for _, relay := range relays {
		if p.probeHealthy(ctx, relay) {
			healthy = append(healthy, relay)
		}
	}

	metrics.SetGauge("relays_healthy", float64(len(healthy)), nil, "Relays passing health probes at last selection")

	if len(healthy) == 0 {
		return nil, nil
	}

	selected := healthy[p.randInt(len(healthy))]
	p.logger.WithFields(logrus.Fields{
		"relay_id":   selected.ID,
		"candidates": len(healthy),
	}).Debug("Relay selected")
	return selected, nil
}

// probeHealthy runs the health check through the relay's circuit breaker
// so a dead relay stops costing a full probe timeout on every dispatch.
func (p *relayPool) probeHealthy(ctx context.Context, relay *models.RelayConfig) bool {
	breaker := p.breakerFor(relay.ID)

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		status := p.checker.CheckConnection(ctx, relay)
		if !status.OK() {
			return fmt.Errorf("relay %d unhealthy (smtp=%t imap=%t)", relay.ID, status.SMTPOK, status.IMAPOK)
		}
		return nil
	})
	if err != nil {
		if circuitbreaker.IsCircuitBreakerError(err) {
			p.logger.WithField("relay_id", relay.ID).Debug("Relay skipped, circuit breaker open")
		}
		return false
	}
	return true
}

func (p *relayPool) breakerFor(relayID int64) *circuitbreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	breaker, ok := p.breakers[relayID]
	if !ok {
		breaker = circuitbreaker.NewWithLogger(
			fmt.Sprintf("relay-%d", relayID),
			p.breakerMaxFailures,
			p.breakerReset,
			p.logger,
		)
		p.breakers[relayID] = breaker
	}
	return breaker
}

// TestRelay runs a direct health check for the operator endpoint. The
// circuit breaker is bypassed so the result reflects the relay's actual
// current state.
func (p *relayPool) TestRelay(ctx context.Context, relayID int64) (models.HealthStatus, error) {
	relay, err := p.store.GetRelay(ctx, relayID)
	if err != nil {
		return models.HealthStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "looking up relay failed")
	}
	if relay == nil {
		return models.HealthStatus{}, errors.NewNotFoundError("relay", fmt.Sprintf("%d", relayID))
	}

	return p.checker.CheckConnection(ctx, relay), nil
}
