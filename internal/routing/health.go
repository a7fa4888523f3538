// Package routing picks the active connector for an attempt from the
// merchant's candidate list, scoring each connector by observed in-band
// success rate and latency behind a per-connector circuit breaker.
package routing

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	failureRateThreshold  = 0.5
	minRequestsForCircuit = 20
	openStateDuration     = 30 * time.Second
	statsResetInterval    = 2 * time.Minute
)

// ErrNoConnectorAvailable means every candidate's circuit is open.
var ErrNoConnectorAvailable = errors.New("routing: no connector is available at the moment")

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

type connectorStatus struct {
	name            string
	mutex           sync.RWMutex
	state           circuitState
	lastStateChange time.Time

	successCount    atomic.Int64
	requestCount    atomic.Int64
	avgResponseTime atomic.Int64
}

func (s *connectorStatus) resetStats() {
	s.requestCount.Store(0)
	s.successCount.Store(0)
	s.avgResponseTime.Store(0)
}

// HealthDecider tracks connector outcomes reported by the executor path and
// chooses the healthiest candidate for new attempts.
type HealthDecider struct {
	mu         sync.RWMutex
	connectors map[string]*connectorStatus
	quit       chan struct{}
	log        zerolog.Logger
}

func NewHealthDecider(log zerolog.Logger, names ...string) *HealthDecider {
	d := &HealthDecider{
		connectors: make(map[string]*connectorStatus, len(names)),
		quit:       make(chan struct{}),
		log:        log.With().Str("component", "routing").Logger(),
	}
	for _, name := range names {
		d.connectors[name] = &connectorStatus{name: name}
	}
	return d
}

func (d *HealthDecider) status(name string) *connectorStatus {
	d.mu.RLock()
	s, ok := d.connectors[name]
	d.mu.RUnlock()
	if ok {
		return s
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok = d.connectors[name]; ok {
		return s
	}
	s = &connectorStatus{name: name}
	d.connectors[name] = s
	return s
}

// Start launches the periodic stats reset and half-open probing loop.
func (d *HealthDecider) Start() {
	go d.run()
}

func (d *HealthDecider) Stop() {
	close(d.quit)
}

func (d *HealthDecider) run() {
	reset := time.NewTicker(statsResetInterval)
	probe := time.NewTicker(5 * time.Second)
	defer reset.Stop()
	defer probe.Stop()
	for {
		select {
		case <-reset.C:
			d.mu.RLock()
			for _, s := range d.connectors {
				s.mutex.Lock()
				s.resetStats()
				s.mutex.Unlock()
			}
			d.mu.RUnlock()
		case <-probe.C:
			d.mu.RLock()
			for _, s := range d.connectors {
				s.mutex.Lock()
				if s.state == stateOpen && time.Since(s.lastStateChange) > openStateDuration {
					d.log.Info().Str("connector", s.name).Msg("circuit breaker entering half-open")
					s.state = stateHalfOpen
				}
				s.mutex.Unlock()
			}
			d.mu.RUnlock()
		case <-d.quit:
			return
		}
	}
}

// RegisterFailure records a failed connector call and may trip the breaker.
func (d *HealthDecider) RegisterFailure(name string) {
	s := d.status(name)
	totalRequests := s.requestCount.Add(1)
	successes := s.successCount.Load()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == stateHalfOpen {
		d.log.Warn().Str("connector", name).Msg("half-open probe failed, circuit breaker open again")
		s.state = stateOpen
		s.lastStateChange = time.Now()
		return
	}
	if s.state == stateClosed && totalRequests >= minRequestsForCircuit {
		failureRate := float64(totalRequests-successes) / float64(totalRequests)
		if failureRate > failureRateThreshold {
			d.log.Warn().Str("connector", name).Float64("failure_rate", failureRate).Msg("circuit breaker open")
			s.state = stateOpen
			s.lastStateChange = time.Now()
		}
	}
}

// RegisterSuccess records a successful connector call with its latency.
func (d *HealthDecider) RegisterSuccess(name string, responseTime time.Duration) {
	s := d.status(name)
	s.requestCount.Add(1)
	s.successCount.Add(1)

	currentAvg := s.avgResponseTime.Load()
	s.avgResponseTime.Store((currentAvg + responseTime.Milliseconds()) / 2)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state == stateHalfOpen {
		d.log.Info().Str("connector", name).Msg("connector recovered, circuit breaker closed")
		s.state = stateClosed
		s.resetStats()
	}
}

// Choose picks the healthiest candidate whose circuit is not open,
// preserving the merchant's preference order as the tie-breaker.
func (d *HealthDecider) Choose(candidates []string) (string, error) {
	best := ""
	maxScore := -1.0
	for _, name := range candidates {
		s := d.status(name)
		s.mutex.RLock()
		state := s.state
		s.mutex.RUnlock()
		if state == stateOpen {
			continue
		}
		if score := d.healthScore(s); score > maxScore {
			maxScore = score
			best = name
		}
	}
	if best == "" {
		return "", ErrNoConnectorAvailable
	}
	return best, nil
}

func (d *HealthDecider) healthScore(s *connectorStatus) float64 {
	requests := s.requestCount.Load()
	if requests < 5 {
		return 1.0
	}
	successRate := float64(s.successCount.Load()) / float64(requests)
	latencyScore := math.Exp(-0.005 * float64(s.avgResponseTime.Load()))
	return 0.7*successRate + 0.3*latencyScore
}
