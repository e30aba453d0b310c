// Package redeem drains redeemable positions for the funding wallet:
// a bounded per-cycle loop over winning Data API positions, submission
// through the configured execution path (direct on-chain redeemPositions
// or a relayer), credential rotation on quota and auth failures, and
// asynchronous reconciliation of submitted transactions into confirmed
// payouts.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/internal/credentials"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

const (
	// dedupWindow blocks resubmitting a conditionId submitted recently,
	// whatever became of the first attempt.
	dedupWindow = 10 * time.Minute
	// maxCycleFailures stops a drain cycle once this many submissions
	// failed without a credential rotation to blame.
	maxCycleFailures = 3

	stateName = "redemptions"
)

// Request describes one redemption to submit.
type Request struct {
	ConditionID string
	NegRisk     bool
	Size        float64
}

// Confirmation is the reconciled outcome of a submitted redemption.
type Confirmation struct {
	// TxStatus is the receipt status: 1 executed, 0 reverted. Relayer
	// paths map their terminal states onto the same values.
	TxStatus  uint64
	PayoutUsd float64
}

// Submitter executes redemptions and awaits their confirmation.
type Submitter interface {
	SubmitRedeem(ctx context.Context, req Request, cred types.Credential) (string, error)
	AwaitConfirmation(ctx context.Context, txRef string) (*Confirmation, error)
}

// PositionSource lists the funding wallet's venue positions.
type PositionSource interface {
	RedeemablePositions(ctx context.Context, wallet string) ([]types.DataAPIPosition, error)
}

// CredentialSource is the rotation pool surface the drain uses.
type CredentialSource interface {
	Active() (types.Credential, error)
	Rotate(reason credentials.Reason, resetAt time.Time, lastError string) error
	Ready() bool
}

// PositionStore moves tracked positions through the redeem phases.
type PositionStore interface {
	All() []types.Position
	Transition(key string, next types.Phase) error
}

// Recorder appends drain activity to the action history.
type Recorder interface {
	Record(ctx context.Context, entry types.HistoryEntry) types.HistoryEntry
}

// Persister stores the redemption ledger across restarts.
type Persister interface {
	Save(name string, v any) error
	LoadOr(name string, v any) (bool, error)
}

// Config wires the drainer.
type Config struct {
	Method          types.RedeemMethod
	Interval        time.Duration
	MaxPerCycle     int
	Delay           time.Duration
	ConfirmTimeout  time.Duration
	WinnerThreshold float64
	DustSize        float64
	// Wallet is the funding wallet whose positions are drained.
	Wallet string

	Positions   PositionSource
	Submitter   Submitter
	Credentials CredentialSource
	Tracker     PositionStore
	History     Recorder
	State       Persister
	Logger      *zap.Logger
}

// Drainer runs the redeem loop and owns the redemption ledger.
type Drainer struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	redemptions map[string]*types.Redemption // conditionId -> latest
	failStreak  int                          // consecutive failed redemptions, watchdog input

	wg  sync.WaitGroup
	now func() time.Time
}

// New validates the wiring, restores the persisted ledger and returns
// the drainer.
func New(cfg *Config) (*Drainer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Method != types.RedeemOnChain && cfg.Method != types.RedeemRelayer {
		return nil, fmt.Errorf("unknown redeem method %q", cfg.Method)
	}
	if cfg.MaxPerCycle <= 0 {
		return nil, fmt.Errorf("max per cycle must be positive, got %d", cfg.MaxPerCycle)
	}
	if cfg.WinnerThreshold <= 0 || cfg.WinnerThreshold > 1 {
		return nil, fmt.Errorf("winner threshold must be in (0, 1], got %f", cfg.WinnerThreshold)
	}
	if cfg.ConfirmTimeout <= 0 {
		return nil, fmt.Errorf("confirm timeout must be positive, got %s", cfg.ConfirmTimeout)
	}
	if cfg.Wallet == "" {
		return nil, fmt.Errorf("funding wallet cannot be empty")
	}
	if cfg.Positions == nil || cfg.Submitter == nil || cfg.Credentials == nil {
		return nil, fmt.Errorf("positions, submitter and credentials are required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	d := &Drainer{
		cfg:         *cfg,
		logger:      cfg.Logger.With(zap.String("component", "redeem"), zap.String("method", string(cfg.Method))),
		redemptions: make(map[string]*types.Redemption),
		now:         time.Now,
	}

	if cfg.State != nil {
		if _, err := cfg.State.LoadOr(stateName, &d.redemptions); err != nil {
			return nil, fmt.Errorf("load redemption ledger: %w", err)
		}
	}

	return d, nil
}

// Run drains on the configured cadence until ctx is cancelled, then
// waits for in-flight reconciliations.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("redeem-drain-started",
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("max-per-cycle", d.cfg.MaxPerCycle))

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.logger.Info("redeem-drain-stopped")

			return
		case <-ticker.C:
			if _, err := d.Cycle(ctx); err != nil {
				d.logger.Warn("drain-cycle-failed", zap.Error(err))
			}
		}
	}
}

// Cycle runs one bounded drain pass over the wallet's redeemable
// positions and returns how many redemptions it submitted.
func (d *Drainer) Cycle(ctx context.Context) (int, error) {
	start := d.now()
	defer func() { CycleDuration.Observe(time.Since(start).Seconds()) }()

	eligible, err := d.eligible(ctx, true)
	if err != nil {
		return 0, err
	}

	submitted, failures := 0, 0
	for _, pos := range eligible {
		if submitted >= d.cfg.MaxPerCycle {
			break
		}
		if !d.cfg.Credentials.Ready() {
			return submitted, types.ErrNoCredential
		}

		if err := d.submitOne(ctx, requestFor(pos), false); err != nil {
			failures++
			if failures >= maxCycleFailures {
				return submitted, fmt.Errorf("drain cycle stopped after %d failures: %w", failures, err)
			}

			continue
		}
		submitted++

		if d.cfg.Delay > 0 && submitted < d.cfg.MaxPerCycle {
			select {
			case <-ctx.Done():
				return submitted, ctx.Err()
			case <-time.After(d.cfg.Delay):
			}
		}
	}

	return submitted, nil
}

// DrainMarket submits one market manually and blocks until the
// redemption reaches a terminal state or the confirm timeout lapses.
func (d *Drainer) DrainMarket(ctx context.Context, conditionID string) (*types.Redemption, error) {
	if r, ok := d.Redemption(conditionID); ok && r.Status == types.RedeemConfirmed && r.Paid {
		// Already drained; nothing to redo.
		return &r, nil
	}

	positions, err := d.cfg.Positions.RedeemablePositions(ctx, d.cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("scan wallet positions: %w", err)
	}

	var target *types.DataAPIPosition
	for i := range positions {
		if strings.EqualFold(positions[i].ConditionID, conditionID) &&
			positions[i].Winning(d.cfg.WinnerThreshold, d.cfg.DustSize) {
			target = &positions[i]

			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("no redeemable position for market %s", conditionID)
	}

	if err := d.submitOne(ctx, requestFor(*target), true); err != nil {
		return nil, err
	}

	r, _ := d.Redemption(conditionID)

	return &r, nil
}

// eligible filters the wallet scan down to submittable markets. When
// engineOnly is set, markets the tracker never ordered are skipped so
// the automated drain leaves manually held positions alone.
func (d *Drainer) eligible(ctx context.Context, engineOnly bool) ([]types.DataAPIPosition, error) {
	positions, err := d.cfg.Positions.RedeemablePositions(ctx, d.cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("scan wallet positions: %w", err)
	}

	var tracked map[string]bool
	if engineOnly && d.cfg.Tracker != nil {
		tracked = make(map[string]bool)
		for _, p := range d.cfg.Tracker.All() {
			tracked[strings.ToLower(p.ConditionID)] = true
		}
	}

	now := d.now()
	var out []types.DataAPIPosition
	for _, pos := range positions {
		if !pos.Winning(d.cfg.WinnerThreshold, d.cfg.DustSize) {
			continue
		}
		if tracked != nil && !tracked[strings.ToLower(pos.ConditionID)] {
			continue
		}
		if d.blocked(pos.ConditionID, now) {
			continue
		}
		out = append(out, pos)
	}

	return out, nil
}

// blocked reports whether a market must not be resubmitted: an
// in-flight submission, a paid confirmation, or anything inside the
// trailing dedup window.
func (d *Drainer) blocked(conditionID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.redemptions[strings.ToLower(conditionID)]
	if !ok {
		return false
	}
	if r.Status == types.RedeemSubmitted {
		return true
	}
	if r.Status == types.RedeemConfirmed && r.Paid {
		return true
	}

	return now.Sub(r.SubmittedAt) < dedupWindow
}

// submitOne submits a redemption, rotating credentials on quota and
// auth failures. Manual submissions reconcile synchronously; automated
// ones hand off to a goroutine and return after submission.
func (d *Drainer) submitOne(ctx context.Context, req Request, blocking bool) error {
	cred, err := d.cfg.Credentials.Active()
	if err != nil {
		return err
	}

	txRef, err := d.cfg.Submitter.SubmitRedeem(ctx, req, cred)
	if err != nil && types.IsQuota(err) {
		// Rotate and retry once on a fresh credential.
		d.rotate(credentials.ReasonQuota, err)
		if cred, err = d.cfg.Credentials.Active(); err == nil {
			txRef, err = d.cfg.Submitter.SubmitRedeem(ctx, req, cred)
		}
	}
	if err != nil {
		if types.IsAuth(err) {
			d.rotate(credentials.ReasonAuth, err)
		}
		d.recordFailure(ctx, req.ConditionID, err)

		return fmt.Errorf("submit redeem %s: %w", req.ConditionID, err)
	}

	now := d.now()
	d.mu.Lock()
	d.redemptions[strings.ToLower(req.ConditionID)] = &types.Redemption{
		ConditionID: req.ConditionID,
		Method:      d.cfg.Method,
		Status:      types.RedeemSubmitted,
		SubmittedAt: now,
		TxReference: txRef,
	}
	d.persistLocked()
	d.mu.Unlock()

	SubmittedTotal.WithLabelValues(string(d.cfg.Method)).Inc()
	d.transitionTracked(req.ConditionID, types.PhaseRedeemSubmitted)
	d.record(ctx, req.ConditionID, types.HistoryEntry{
		Action:  types.ActionRedeem,
		Outcome: "ok",
		Detail:  fmt.Sprintf("submitted via %s, tx %s", d.cfg.Method, txRef),
	})
	d.logger.Info("redeem-submitted",
		zap.String("condition-id", req.ConditionID),
		zap.String("tx", txRef))

	if blocking {
		return d.reconcile(ctx, req.ConditionID, txRef)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Reconciliation outlives the submitting request.
		rctx, cancel := context.WithTimeout(context.Background(), d.cfg.ConfirmTimeout)
		defer cancel()
		if err := d.reconcile(rctx, req.ConditionID, txRef); err != nil {
			d.logger.Warn("reconcile-failed",
				zap.String("condition-id", req.ConditionID), zap.Error(err))
		}
	}()

	return nil
}

// reconcile awaits the transaction and settles the redemption into a
// terminal state, deriving paid from the receipt's payout.
func (d *Drainer) reconcile(ctx context.Context, conditionID, txRef string) error {
	conf, err := d.cfg.Submitter.AwaitConfirmation(ctx, txRef)
	now := d.now()

	d.mu.Lock()
	r, ok := d.redemptions[strings.ToLower(conditionID)]
	if !ok || r.TxReference != txRef {
		// Superseded by a newer submission.
		d.mu.Unlock()

		return nil
	}

	switch {
	case err != nil:
		r.Status = types.RedeemFailed
		r.ResolvedAt = now
		r.Error = types.Summary(err)
		d.failStreak++
	case conf.TxStatus != 1:
		r.Status = types.RedeemFailed
		r.ResolvedAt = now
		r.Error = "transaction reverted"
		d.failStreak++
	default:
		r.Status = types.RedeemConfirmed
		r.ResolvedAt = now
		r.PayoutUsd = conf.PayoutUsd
		r.Paid = conf.PayoutUsd > 0
		d.failStreak = 0
	}
	settled := *r
	d.persistLocked()
	d.mu.Unlock()

	switch settled.Status {
	case types.RedeemFailed:
		FailedTotal.Inc()
		d.transitionTracked(conditionID, types.PhaseRedeemFailed)
		d.record(ctx, conditionID, types.HistoryEntry{
			Action:  types.ActionRedeem,
			Outcome: "failed",
			Detail:  settled.Error,
		})
		d.logger.Warn("redeem-failed",
			zap.String("condition-id", conditionID),
			zap.String("tx", txRef),
			zap.String("error", settled.Error))

		if err != nil {
			return err
		}

		return fmt.Errorf("redeem %s: transaction reverted", conditionID)

	default:
		ConfirmedTotal.WithLabelValues(fmt.Sprintf("%t", settled.Paid)).Inc()
		PayoutUsd.Add(settled.PayoutUsd)
		d.transitionTracked(conditionID, types.PhaseRedeemed)
		d.record(ctx, conditionID, types.HistoryEntry{
			Action:  types.ActionRedeem,
			Outcome: "ok",
			Detail:  fmt.Sprintf("confirmed, payout %.2f USDC", settled.PayoutUsd),
		})
		if !settled.Paid {
			// Executed on-chain but no payout landed: flag for the
			// operator rather than failing the redemption.
			ZeroPayoutTotal.Inc()
			d.logger.Warn("redeem-confirmed-without-payout",
				zap.String("condition-id", conditionID),
				zap.String("tx", txRef))
		} else {
			d.logger.Info("redeem-confirmed",
				zap.String("condition-id", conditionID),
				zap.Float64("payout-usd", settled.PayoutUsd))
		}

		return nil
	}
}

func (d *Drainer) rotate(reason credentials.Reason, cause error) {
	var resetAt time.Time
	var qe *types.QuotaError
	if errors.As(cause, &qe) {
		resetAt = qe.ResetAt
	}
	if err := d.cfg.Credentials.Rotate(reason, resetAt, types.Summary(cause)); err != nil {
		d.logger.Warn("credential-rotation-failed", zap.Error(err))
	}
}

func (d *Drainer) recordFailure(ctx context.Context, conditionID string, cause error) {
	d.mu.Lock()
	d.failStreak++
	d.mu.Unlock()
	FailedTotal.Inc()
	d.record(ctx, conditionID, types.HistoryEntry{
		Action:  types.ActionRedeem,
		Outcome: "failed",
		Detail:  types.Summary(cause),
	})
}

// transitionTracked advances every tracked position for the market;
// positions the engine never ordered are simply absent.
func (d *Drainer) transitionTracked(conditionID string, phase types.Phase) {
	if d.cfg.Tracker == nil {
		return
	}
	for _, p := range d.cfg.Tracker.All() {
		if !strings.EqualFold(p.ConditionID, conditionID) {
			continue
		}
		if err := d.cfg.Tracker.Transition(p.Key, phase); err != nil {
			d.logger.Debug("phase-transition-skipped",
				zap.String("key", p.Key), zap.String("phase", string(phase)), zap.Error(err))
		}
	}
}

func (d *Drainer) record(ctx context.Context, conditionID string, entry types.HistoryEntry) {
	if d.cfg.History == nil {
		return
	}
	entry.ConditionID = conditionID
	d.cfg.History.Record(ctx, entry)
}

func (d *Drainer) persistLocked() {
	if d.cfg.State == nil {
		return
	}
	if err := d.cfg.State.Save(stateName, d.redemptions); err != nil {
		d.logger.Error("persist-redemptions-failed", zap.Error(err))
	}
}

// Redemption returns the ledger entry for a market.
func (d *Drainer) Redemption(conditionID string) (types.Redemption, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.redemptions[strings.ToLower(conditionID)]
	if !ok {
		return types.Redemption{}, false
	}

	return *r, true
}

// Redemptions lists the ledger for status surfaces.
func (d *Drainer) Redemptions() []types.Redemption {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.Redemption, 0, len(d.redemptions))
	for _, r := range d.redemptions {
		out = append(out, *r)
	}

	return out
}

// FailStreak is the count of consecutive failed redemptions, consumed
// by the watchdog.
func (d *Drainer) FailStreak() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.failStreak
}

// Stuck lists submitted redemptions older than timeout, consumed by
// the watchdog.
func (d *Drainer) Stuck(now time.Time, timeout time.Duration) []types.Redemption {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []types.Redemption
	for _, r := range d.redemptions {
		if r.StuckBy(now, timeout) {
			out = append(out, *r)
		}
	}

	return out
}

func requestFor(pos types.DataAPIPosition) Request {
	return Request{ConditionID: pos.ConditionID, NegRisk: pos.NegRisk, Size: pos.Size}
}
