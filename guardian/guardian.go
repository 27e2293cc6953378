// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardian vets node and edge proposals before they reach the
// graph. The graph itself trusts its inputs; every untrusted producer
// goes through a Guardian first.
package guardian

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/token"
)

var (
	// ErrInvalidProposal wraps structural validation failures.
	ErrInvalidProposal = errors.New("guardian: invalid proposal")

	// ErrSelfLoop rejects self-referential edges under the default policy.
	ErrSelfLoop = errors.New("guardian: self loops are not allowed")

	// ErrNonFiniteWeight rejects NaN and infinite weights.
	ErrNonFiniteWeight = errors.New("guardian: weight must be finite")

	// ErrThrottled reports that the proposal rate limit was exceeded.
	ErrThrottled = errors.New("guardian: proposal rate limit exceeded")
)

// proposalValidate is the validator instance for proposal structs.
var proposalValidate *validator.Validate

func init() {
	proposalValidate = validator.New()
}

// NodeProposal is a request to register a token id in the graph.
type NodeProposal struct {
	// ID is the proposed token id. Zero is reserved and rejected.
	ID uint32 `validate:"required"`

	// EntityType is the proposed classification.
	EntityType token.EntityType `validate:"lt=16"`

	// Domain is the proposed knowledge domain.
	Domain token.Domain `validate:"lt=9"`

	// Weight is the proposed salience. Must be finite.
	Weight float32
}

// EdgeProposal is a request to insert an edge. The structural rules
// live on the connection type itself.
type EdgeProposal = connection.Proposal

// Verdict classifies the outcome of one proposal check.
type Verdict uint8

const (
	// VerdictAccepted means the proposal passed every rule.
	VerdictAccepted Verdict = iota

	// VerdictRejected means a structural or semantic rule failed.
	VerdictRejected

	// VerdictThrottled means the rate limit refused the proposal
	// before any rule ran.
	VerdictThrottled
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictRejected:
		return "rejected"
	case VerdictThrottled:
		return "throttled"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// Decision records one proposal check for subscribers. Exactly one of
// Node or Edge is set.
type Decision struct {
	// ID uniquely identifies this decision.
	ID string

	// Verdict is the outcome.
	Verdict Verdict

	// Reason explains rejections and throttles. Empty when accepted.
	Reason string

	// At is when the decision was made.
	At time.Time

	// Node is the checked node proposal, if any.
	Node *NodeProposal

	// Edge is the checked edge proposal, if any.
	Edge *EdgeProposal
}

// Config parameterizes a Guardian.
type Config struct {
	// MaxProposalsPerSecond caps the combined node+edge check rate.
	// Zero means unlimited.
	MaxProposalsPerSecond float64

	// Burst is the rate limiter burst size. Defaults to 1 when a rate
	// is set.
	Burst int

	// AllowSelfLoops permits edges whose endpoints coincide.
	AllowSelfLoops bool

	// SubscriberBuffer is the per-subscriber channel depth.
	// Default: 16.
	SubscriberBuffer int

	// Logger receives rejection records. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultConfig allows everything except self loops, unthrottled.
func DefaultConfig() Config {
	return Config{SubscriberBuffer: 16}
}

// Guardian validates proposals and broadcasts its decisions.
//
// Description:
//
//	Checks run the rate limit first, then the struct tags, then the
//	semantic rules (finite weight, self-loop policy). Every check
//	produces exactly one Decision, delivered to each subscriber on a
//	buffered channel; slow subscribers lose decisions rather than
//	block the caller.
//
// Thread Safety:
//
//	Guardian is safe for concurrent use.
type Guardian struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Decision

	accepted  atomic.Int64
	rejected  atomic.Int64
	throttled atomic.Int64
	dropped   atomic.Int64
}

// New creates a Guardian from cfg.
func New(cfg Config) *Guardian {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 16
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	g := &Guardian{
		cfg:         cfg,
		logger:      cfg.Logger.With(slog.String("component", "guardian")),
		subscribers: make(map[string]chan Decision),
	}
	if cfg.MaxProposalsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.MaxProposalsPerSecond), cfg.Burst)
	}
	return g
}

// CheckNode vets a node proposal. A nil error means the proposal may
// be applied to the graph.
func (g *Guardian) CheckNode(p NodeProposal) error {
	d := Decision{ID: uuid.NewString(), At: time.Now(), Node: &p}

	if !g.admit() {
		d.Verdict = VerdictThrottled
		d.Reason = ErrThrottled.Error()
		g.throttled.Add(1)
		g.publish(d)
		return ErrThrottled
	}

	if err := g.vetNode(&p); err != nil {
		d.Verdict = VerdictRejected
		d.Reason = err.Error()
		g.rejected.Add(1)
		g.publish(d)
		g.logger.Debug("node proposal rejected",
			slog.Int64("id", int64(p.ID)),
			slog.String("reason", d.Reason))
		return err
	}

	d.Verdict = VerdictAccepted
	g.accepted.Add(1)
	g.publish(d)
	return nil
}

// CheckEdge vets an edge proposal. A nil error means the proposal may
// be applied to the graph.
func (g *Guardian) CheckEdge(p EdgeProposal) error {
	d := Decision{ID: uuid.NewString(), At: time.Now(), Edge: &p}

	if !g.admit() {
		d.Verdict = VerdictThrottled
		d.Reason = ErrThrottled.Error()
		g.throttled.Add(1)
		g.publish(d)
		return ErrThrottled
	}

	if err := g.vetEdge(&p); err != nil {
		d.Verdict = VerdictRejected
		d.Reason = err.Error()
		g.rejected.Add(1)
		g.publish(d)
		g.logger.Debug("edge proposal rejected",
			slog.Int64("from", int64(p.FromID)),
			slog.Int64("to", int64(p.ToID)),
			slog.String("reason", d.Reason))
		return err
	}

	d.Verdict = VerdictAccepted
	g.accepted.Add(1)
	g.publish(d)
	return nil
}

// admit consumes one rate limit token. Unlimited guardians always admit.
func (g *Guardian) admit() bool {
	return g.limiter == nil || g.limiter.Allow()
}

func (g *Guardian) vetNode(p *NodeProposal) error {
	if err := proposalValidate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	if !finite(p.Weight) {
		return fmt.Errorf("%w: %v", ErrNonFiniteWeight, p.Weight)
	}
	return nil
}

func (g *Guardian) vetEdge(p *EdgeProposal) error {
	if err := proposalValidate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	if !finite(p.Weight) {
		return fmt.Errorf("%w: %v", ErrNonFiniteWeight, p.Weight)
	}
	if p.FromID == p.ToID && !g.cfg.AllowSelfLoops {
		return fmt.Errorf("%w: %d", ErrSelfLoop, p.FromID)
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Subscribe registers a decision channel.
//
// Outputs:
//
//	<-chan Decision - Buffered channel of future decisions.
//	func() - Cancel function; closes the channel and stops delivery.
//	Safe to call more than once.
func (g *Guardian) Subscribe() (<-chan Decision, func()) {
	ch := make(chan Decision, g.cfg.SubscriberBuffer)
	id := uuid.NewString()

	g.mu.Lock()
	g.subscribers[id] = ch
	g.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subscribers, id)
			g.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish delivers a decision to every subscriber without blocking.
// Sends happen under the read lock so a concurrent cancel cannot close
// a channel mid-send.
func (g *Guardian) publish(d Decision) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, ch := range g.subscribers {
		select {
		case ch <- d:
		default:
			g.dropped.Add(1)
		}
	}
}

// Stats is a point-in-time summary of guardian activity.
type Stats struct {
	// Accepted counts proposals that passed every rule.
	Accepted int64

	// Rejected counts structural and semantic failures.
	Rejected int64

	// Throttled counts proposals refused by the rate limit.
	Throttled int64

	// DroppedDecisions counts decisions lost to full subscriber buffers.
	DroppedDecisions int64

	// Subscribers is the current subscription count.
	Subscribers int
}

// Stats returns current counters.
func (g *Guardian) Stats() Stats {
	g.mu.RLock()
	subs := len(g.subscribers)
	g.mu.RUnlock()

	return Stats{
		Accepted:         g.accepted.Load(),
		Rejected:         g.rejected.Load(),
		Throttled:        g.throttled.Load(),
		DroppedDecisions: g.dropped.Load(),
		Subscribers:      subs,
	}
}
