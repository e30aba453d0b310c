package positions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	tr, err := New(&Config{
		Retention:           48 * time.Hour,
		FailedRetryCooldown: 10 * time.Minute,
		Logger:              zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	return tr
}

func testPosition(key string, expiry time.Time) *types.Position {
	return &types.Position{
		Key:          key,
		ConditionID:  "0xcond",
		InstrumentID: "123456",
		Strategy:     "btc-updown-1h",
		Symbol:       "BTC",
		Timeframe:    "1h",
		Side:         types.SideUp,
		EntryPrice:   0.80,
		TotalSize:    100,
		Expiry:       expiry,
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: "config cannot be nil",
		},
		{
			name:    "zero retention",
			cfg:     &Config{Retention: 0, Logger: logger},
			wantErr: "retention must be positive",
		},
		{
			name:    "negative cooldown",
			cfg:     &Config{Retention: time.Hour, FailedRetryCooldown: -time.Second, Logger: logger},
			wantErr: "failed retry cooldown cannot be negative",
		},
		{
			name:    "nil logger",
			cfg:     &Config{Retention: time.Hour},
			wantErr: "logger cannot be nil",
		},
		{
			name: "valid",
			cfg:  &Config{Retention: time.Hour, FailedRetryCooldown: time.Minute, Logger: logger},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, tr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tr)
		})
	}
}

func TestTracker_RegisterRejectsLiveDuplicate(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, tr.Register(testPosition("0xcond:123456", expiry)))

	err := tr.Register(testPosition("0xcond:123456", expiry))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already tracked in phase ordered")
}

func TestTracker_RegisterAllowsRetryAfterFailedCooldown(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	base := time.Now()
	tr.now = func() time.Time { return base }

	require.NoError(t, tr.Register(testPosition("0xcond:123456", base.Add(time.Hour))))
	require.NoError(t, tr.Transition("0xcond:123456", types.PhaseFailed))

	// Still inside the cooldown the key stays claimed.
	err := tr.Register(testPosition("0xcond:123456", base.Add(time.Hour)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already tracked in phase failed")

	tr.now = func() time.Time { return base.Add(11 * time.Minute) }
	require.NoError(t, tr.Register(testPosition("0xcond:123456", base.Add(time.Hour))))
}

func TestTracker_TransitionOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    []types.Phase
		wantErr string
	}{
		{
			name: "full redeem lifecycle",
			path: []types.Phase{types.PhaseExpired, types.PhaseRedeemSubmitted, types.PhaseRedeemed},
		},
		{
			name: "redeem failure lifecycle",
			path: []types.Phase{types.PhaseExpired, types.PhaseRedeemSubmitted, types.PhaseRedeemFailed},
		},
		{
			name: "skip straight to redeemed",
			path: []types.Phase{types.PhaseRedeemed},
		},
		{
			name:    "backwards move rejected",
			path:    []types.Phase{types.PhaseRedeemed, types.PhaseExpired},
			wantErr: "cannot move redeemed -> expired",
		},
		{
			name:    "same phase rejected",
			path:    []types.Phase{types.PhaseExpired, types.PhaseExpired},
			wantErr: "cannot move expired -> expired",
		},
		{
			name: "failed reachable from terminal",
			path: []types.Phase{types.PhaseRedeemed, types.PhaseFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := newTestTracker(t)
			require.NoError(t, tr.Register(testPosition("0xcond:123456", time.Now().Add(time.Hour))))

			var err error
			for _, next := range tt.path {
				err = tr.Transition("0xcond:123456", next)
				if err != nil {
					break
				}
			}

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			p, ok := tr.Get("0xcond:123456")
			require.True(t, ok)
			assert.Equal(t, tt.path[len(tt.path)-1], p.Phase)
		})
	}
}

func TestTracker_TransitionUnknownKey(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)

	err := tr.Transition("0xmissing:1", types.PhaseExpired)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not tracked")
}

func TestTracker_ApplySell(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	require.NoError(t, tr.Register(testPosition("0xcond:123456", time.Now().Add(time.Hour))))

	require.NoError(t, tr.ApplySell("0xcond:123456", 50, types.Cut1))

	p, ok := tr.Get("0xcond:123456")
	require.True(t, ok)
	assert.Equal(t, 50.0, p.SoldSize)
	assert.Equal(t, types.Cut1, p.CutsApplied)
	assert.Equal(t, 50.0, p.RemainingSize())

	require.NoError(t, tr.ApplySell("0xcond:123456", 50, types.Cut2))

	p, _ = tr.Get("0xcond:123456")
	assert.Equal(t, 100.0, p.SoldSize)
	assert.Equal(t, types.Cut2, p.CutsApplied)
	assert.Equal(t, 0.0, p.RemainingSize())

	err := tr.ApplySell("0xcond:123456", 1, types.Cut2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds remaining")
}

func TestTracker_HasLiveFor(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	require.NoError(t, tr.Register(testPosition("0xcond:123456", expiry)))

	assert.True(t, tr.HasLiveFor("BTC", expiry))
	assert.False(t, tr.HasLiveFor("ETH", expiry))
	assert.False(t, tr.HasLiveFor("BTC", expiry.Add(time.Hour)))

	// Redeemed positions release the key.
	require.NoError(t, tr.Transition("0xcond:123456", types.PhaseRedeemed))
	assert.False(t, tr.HasLiveFor("BTC", expiry))
}

func TestTracker_MarkExpired(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	base := time.Now()

	require.NoError(t, tr.Register(testPosition("0xcond:1", base.Add(time.Minute))))
	require.NoError(t, tr.Register(testPosition("0xcond:2", base.Add(time.Hour))))

	moved := tr.MarkExpired(base.Add(2 * time.Minute))
	assert.Equal(t, 1, moved)

	p, _ := tr.Get("0xcond:1")
	assert.Equal(t, types.PhaseExpired, p.Phase)
	p, _ = tr.Get("0xcond:2")
	assert.Equal(t, types.PhaseOrdered, p.Phase)

	assert.WithinDuration(t, base.Add(2*time.Minute), tr.LastExpiry("BTC"), time.Second)
	assert.True(t, tr.LastExpiry("ETH").IsZero())
}

func TestTracker_SweepHonorsRetention(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	base := time.Now()
	tr.now = func() time.Time { return base }

	old := testPosition("0xcond:old", base.Add(time.Hour))
	old.OrderedAt = base.Add(-49 * time.Hour)
	fresh := testPosition("0xcond:fresh", base.Add(time.Hour))
	fresh.OrderedAt = base.Add(-time.Hour)

	require.NoError(t, tr.Register(old))
	require.NoError(t, tr.Register(fresh))

	dropped := tr.Sweep(base)
	assert.Equal(t, 1, dropped)

	_, ok := tr.Get("0xcond:old")
	assert.False(t, ok)
	_, ok = tr.Get("0xcond:fresh")
	assert.True(t, ok)
}

func TestTracker_ActiveForStopLoss(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	base := time.Now()
	tr.now = func() time.Time { return base }

	live := testPosition("0xcond:live", base.Add(time.Hour))
	require.NoError(t, tr.Register(live))

	soldOut := testPosition("0xcond:sold", base.Add(time.Hour))
	require.NoError(t, tr.Register(soldOut))
	require.NoError(t, tr.ApplySell("0xcond:sold", 100, types.Cut2))

	past := testPosition("0xcond:past", base.Add(-time.Minute))
	past.OrderedAt = base.Add(-2 * time.Hour)
	require.NoError(t, tr.Register(past))

	other := testPosition("0xcond:other", base.Add(time.Hour))
	other.Strategy = "eth-updown-1h"
	require.NoError(t, tr.Register(other))

	active := tr.ActiveForStopLoss("btc-updown-1h")
	require.Len(t, active, 1)
	assert.Equal(t, "0xcond:live", active[0].Key)
}
