package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// DecisionStore is the persistence dependency the Engine needs: every
// evaluation, cached or not, emits a PermissionDecision row.
type DecisionStore interface {
	InsertPermissionDecision(ctx context.Context, pd *models.PermissionDecision) error
}

// Engine evaluates an ordered list of policies against tool calls,
// first-non-Abstain-wins, and records every decision.
type Engine struct {
	mu       sync.RWMutex
	policies []Policy
	version  int64
	cache    sync.Map // cacheKey -> Decision
	store    DecisionStore
}

func NewEngine(store DecisionStore, policies ...Policy) *Engine {
	return &Engine{policies: policies, store: store}
}

// SetPolicies replaces the ordered policy chain and bumps the cache
// version so every previously cached decision is invalidated.
func (e *Engine) SetPolicies(policies []Policy) {
	e.mu.Lock()
	e.policies = policies
	e.mu.Unlock()
	atomic.AddInt64(&e.version, 1)
	e.cache = sync.Map{}
}

type cacheEntry struct {
	version  int64
	decision Decision
}

// Evaluate runs tool/input through the policy chain, returning the
// first non-Abstain decision (or Abstain if every policy abstains),
// and persists a PermissionDecision row regardless of whether the
// result came from cache.
func (e *Engine) Evaluate(ctx context.Context, sessionID uuid.UUID, tool string, input []byte, pctx Context) (Decision, error) {
	key, err := cacheKey(sessionID, tool, input)
	if err != nil {
		return Decision{}, err
	}

	version := atomic.LoadInt64(&e.version)
	decision, err := e.evaluateCached(ctx, key, version, tool, input, pctx)
	if err != nil {
		return Decision{}, err
	}

	if err := e.record(ctx, sessionID, tool, input, decision); err != nil {
		return decision, err
	}
	return decision, nil
}

func (e *Engine) evaluateCached(ctx context.Context, key string, version int64, tool string, input []byte, pctx Context) (Decision, error) {
	if cached, ok := e.cache.Load(key); ok {
		entry := cached.(cacheEntry)
		if entry.version == version {
			return entry.decision, nil
		}
	}

	e.mu.RLock()
	policies := e.policies
	e.mu.RUnlock()

	decision := Decision{Result: Abstain}
	for _, p := range policies {
		d, err := p.Evaluate(ctx, tool, input, pctx)
		if err != nil {
			return Decision{}, err
		}
		if d.Result != Abstain {
			decision = d
			break
		}
	}

	e.cache.Store(key, cacheEntry{version: version, decision: decision})
	return decision, nil
}

func (e *Engine) record(ctx context.Context, sessionID uuid.UUID, tool string, input []byte, decision Decision) error {
	if e.store == nil {
		return nil
	}
	result := models.DecisionAllow
	if decision.Result == Deny {
		result = models.DecisionDeny
	}
	var policyName, reason *string
	if decision.PolicyName != "" {
		policyName = &decision.PolicyName
	}
	if decision.Reason != "" {
		reason = &decision.Reason
	}
	return e.store.InsertPermissionDecision(ctx, &models.PermissionDecision{
		ID:            uuid.New(),
		SessionID:     sessionID,
		ToolName:      tool,
		InputSnapshot: input,
		Decision:      result,
		PolicyName:    policyName,
		Reason:        reason,
		Interrupted:   decision.Interrupt,
		DecidedAt:     time.Now(),
	})
}

// cacheKey hashes session id, tool name and canonicalized input, so a
// cached decision is reused only within the session that produced it
// and two JSON encodings of the same logical input (differing only in
// key order or whitespace) collide in the cache.
func cacheKey(sessionID uuid.UUID, tool string, input []byte) (string, error) {
	canonical, err := canonicalizeJSON(input)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(sessionID[:])
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalizeJSON reparses and remarshals input so object keys are in
// a stable order; encoding/json sorts map[string]any keys on Marshal.
func canonicalizeJSON(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
