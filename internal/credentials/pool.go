// Package credentials manages the execution credential pool: round-robin
// rotation on quota or auth rejections, persisted exhaustion windows,
// and reconfiguration of the execution client on every switch.
package credentials

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const stateName = "credentials"

// Reason classifies why a credential is being rotated away from.
type Reason string

const (
	ReasonQuota Reason = "quota"
	ReasonAuth  Reason = "auth"
)

// Reconfigurable is the execution client surface the pool drives.
type Reconfigurable interface {
	SetCredential(cred types.Credential)
}

// Persister saves pool state between restarts.
type Persister interface {
	Save(name string, v any) error
	LoadOr(name string, v any) (bool, error)
}

// Config holds pool configuration.
type Config struct {
	// Credentials seeds the pool when no persisted state exists.
	Credentials []types.Credential
	// QuotaCooldownDefault applies to quota rotations carrying no
	// parsed reset time.
	QuotaCooldownDefault time.Duration
	// AuthCooldown applies to authorization rejections, which recover
	// slower than rate limits.
	AuthCooldown time.Duration
	// Client is reconfigured on every rotation; nil is allowed in
	// status-only contexts.
	Client Reconfigurable
	// State persists pool state after every mutation; nil keeps the
	// pool in memory only.
	State  Persister
	Logger *zap.Logger
}

// Pool implements credential rotation.
type Pool struct {
	quotaCooldownDefault time.Duration
	authCooldown         time.Duration
	client               Reconfigurable
	state                Persister
	logger               *zap.Logger

	mu   sync.Mutex
	pool types.CredentialPool

	now func() time.Time
}

// New validates cfg, restores persisted state when present and
// configures the client with the active credential.
func New(cfg *Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.QuotaCooldownDefault <= 0 {
		return nil, fmt.Errorf("quota cooldown must be positive, got %s", cfg.QuotaCooldownDefault)
	}
	if cfg.AuthCooldown <= 0 {
		return nil, fmt.Errorf("auth cooldown must be positive, got %s", cfg.AuthCooldown)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	p := &Pool{
		quotaCooldownDefault: cfg.QuotaCooldownDefault,
		authCooldown:         cfg.AuthCooldown,
		client:               cfg.Client,
		state:                cfg.State,
		logger:               cfg.Logger,
		now:                  time.Now,
	}

	restored := false
	if p.state != nil {
		var saved types.CredentialPool
		found, err := p.state.LoadOr(stateName, &saved)
		if err != nil {
			return nil, fmt.Errorf("restore credential pool: %w", err)
		}
		if found && len(saved.Credentials) > 0 {
			p.pool = saved
			restored = true
			p.logger.Info("credential-pool-restored",
				zap.Int("credentials", len(saved.Credentials)),
				zap.Int("active-index", saved.ActiveIndex))
		}
	}
	if !restored {
		if len(cfg.Credentials) == 0 {
			return nil, fmt.Errorf("credential pool cannot be empty")
		}
		p.pool = types.CredentialPool{Credentials: cfg.Credentials}
	}

	if p.pool.ActiveIndex < 0 || p.pool.ActiveIndex >= len(p.pool.Credentials) {
		p.pool.ActiveIndex = 0
	}

	if p.client != nil {
		p.client.SetCredential(p.pool.Credentials[p.pool.ActiveIndex])
	}
	p.updateGauges()

	return p, nil
}

// Active returns the active credential, or ErrNoCredential when it is
// exhausted (callers should Rotate before retrying).
func (p *Pool) Active() (types.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred := p.pool.Credentials[p.pool.ActiveIndex]
	if cred.Exhausted(p.now()) {
		return types.Credential{}, types.ErrNoCredential
	}

	return cred, nil
}

// Ready reports whether any credential in the pool is eligible now.
func (p *Pool) Ready() bool {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.pool.Credentials {
		if !p.pool.Credentials[i].Exhausted(now) {
			return true
		}
	}

	return false
}

// Rotate marks the active credential exhausted with a reason-specific
// cooldown and scans forward for an eligible replacement, starting after
// the active index. resetAt overrides the default quota cooldown when
// the venue supplied one. Returns ErrNoCredential when every credential
// is cooling down; dependent automation must then stop.
func (p *Pool) Rotate(reason Reason, resetAt time.Time, lastError string) error {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	active := &p.pool.Credentials[p.pool.ActiveIndex]
	until := p.cooldownUntil(reason, resetAt, now)
	active.ExhaustedUntil = until
	active.LastError = lastError
	ExhaustedTotal.WithLabelValues(string(reason)).Inc()

	p.logger.Warn("credential-exhausted",
		zap.String("credential-id", active.ID),
		zap.String("reason", string(reason)),
		zap.Time("until", until))

	n := len(p.pool.Credentials)
	for offset := 1; offset <= n; offset++ {
		idx := (p.pool.ActiveIndex + offset) % n
		if p.pool.Credentials[idx].Exhausted(now) {
			continue
		}

		p.pool.ActiveIndex = idx
		p.pool.UpdatedAt = now
		if p.client != nil {
			p.client.SetCredential(p.pool.Credentials[idx])
		}
		RotationsTotal.WithLabelValues(string(reason)).Inc()
		p.persistLocked()
		p.updateGaugesLocked(now)

		p.logger.Info("credential-rotated",
			zap.String("credential-id", p.pool.Credentials[idx].ID),
			zap.Int("active-index", idx))

		return nil
	}

	p.pool.UpdatedAt = now
	p.persistLocked()
	p.updateGaugesLocked(now)

	return types.ErrNoCredential
}

func (p *Pool) cooldownUntil(reason Reason, resetAt, now time.Time) time.Time {
	switch reason {
	case ReasonAuth:
		return now.Add(p.authCooldown)
	default:
		if !resetAt.IsZero() && resetAt.After(now) {
			return resetAt
		}

		return now.Add(p.quotaCooldownDefault)
	}
}

// Snapshot returns a copy of the pool state for status surfaces.
// Secrets are blanked.
func (p *Pool) Snapshot() types.CredentialPool {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := types.CredentialPool{
		ActiveIndex: p.pool.ActiveIndex,
		UpdatedAt:   p.pool.UpdatedAt,
		Credentials: make([]types.Credential, len(p.pool.Credentials)),
	}
	for i, c := range p.pool.Credentials {
		c.Secret = ""
		c.Passphrase = ""
		out.Credentials[i] = c
	}

	return out
}

// persistLocked saves pool state. Callers hold p.mu.
func (p *Pool) persistLocked() {
	if p.state == nil {
		return
	}
	if err := p.state.Save(stateName, p.pool); err != nil {
		p.logger.Error("credential-pool-persist-failed", zap.Error(err))
	}
}

func (p *Pool) updateGauges() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateGaugesLocked(p.now())
}

// updateGaugesLocked refreshes eligibility gauges. Callers hold p.mu.
func (p *Pool) updateGaugesLocked(now time.Time) {
	eligible := 0
	for i := range p.pool.Credentials {
		if !p.pool.Credentials[i].Exhausted(now) {
			eligible++
		}
	}
	EligibleCredentials.Set(float64(eligible))
	PoolSize.Set(float64(len(p.pool.Credentials)))
}
