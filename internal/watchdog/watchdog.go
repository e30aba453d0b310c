// Package watchdog halts automation when the system misbehaves: data
// feeds erroring for consecutive ticks, repeated redemption or order
// failures, duplicate orders for one market inside a trailing window,
// or a redemption stuck past its timeout. A stop disables the gates the
// trading engines check and writes a timestamped report, JSON and
// rendered text, before marking the watchdog not-running.
package watchdog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// StopReason is why automation halted.
type StopReason string

const (
	StopDurationElapsed StopReason = "duration_elapsed"
	StopDataError       StopReason = "data_error"
	StopRedeemFailed    StopReason = "redeem_failed"
	StopOrderFailed     StopReason = "order_failed"
	StopDuplicateOrder  StopReason = "duplicate_order"
	StopRedeemTimeout   StopReason = "redeem_timeout"
)

// duplicateWindow is the trailing span in which a second successful
// entry for one market counts as a duplicate.
const duplicateWindow = 10 * time.Minute

// maxIssues bounds the anomaly ring kept for the report.
const maxIssues = 64

// Issue is one observed anomaly, kept for the stop report.
type Issue struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

// Report is the written record of a stop.
type Report struct {
	Reason    StopReason `json:"reason"`
	Detail    string     `json:"detail"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt time.Time  `json:"stopped_at"`
	Counters  struct {
		DataErrorStreak int `json:"data_error_streak"`
		RedeemFailures  int `json:"redeem_failures"`
		OrderFailures   int `json:"order_failures"`
	} `json:"counters"`
	Issues []Issue `json:"issues,omitempty"`
}

// Feed is one health source whose consecutive failures feed the
// data-error check. The quote cache and the market snapshot both
// satisfy it.
type Feed interface {
	Failures() int
}

// RedeemSource is the drain surface the watchdog inspects.
type RedeemSource interface {
	FailStreak() int
	Stuck(now time.Time, timeout time.Duration) []types.Redemption
}

// HistorySource answers order-failure and duplicate-order queries.
type HistorySource interface {
	Recent(limit int) []types.HistoryEntry
	DuplicateOrderMarkets(within time.Duration) []string
}

// Recorder appends the stop to the action history.
type Recorder interface {
	Record(ctx context.Context, entry types.HistoryEntry) types.HistoryEntry
}

// ReportSink persists stop reports. The statefile store satisfies it;
// reports are retained, never overwritten.
type ReportSink interface {
	Save(name string, v any) error
	WriteText(name string, text string) error
}

// Config wires the watchdog.
type Config struct {
	Interval time.Duration
	// RunWindow bounds the total automation runtime; zero disables the
	// duration stop.
	RunWindow       time.Duration
	StaleThreshold  int
	RedeemThreshold int
	OrderThreshold  int
	RedeemTimeout   time.Duration

	// Feeds maps a name to each health source.
	Feeds   map[string]Feed
	Redeems RedeemSource
	History HistorySource
	Record  Recorder
	Reports ReportSink
	Logger  *zap.Logger
}

// Watchdog checks the system every tick and gates automation.
type Watchdog struct {
	cfg    Config
	logger *zap.Logger

	mu              sync.Mutex
	running         bool
	startedAt       time.Time
	dataErrorStreak int
	issues          []Issue
	report          *Report

	now func() time.Time
}

// New validates cfg and returns a watchdog ready to Run.
func New(cfg *Config) (*Watchdog, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.StaleThreshold <= 0 {
		return nil, fmt.Errorf("stale threshold must be positive, got %d", cfg.StaleThreshold)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Watchdog{
		cfg:    *cfg,
		logger: cfg.Logger.With(zap.String("component", "watchdog")),
		now:    time.Now,
	}, nil
}

// Enabled implements the automation gate the engines check.
func (w *Watchdog) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// Start arms the gate. Run calls it; exposed for manual restarts after
// an operator has reviewed a stop report.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = true
	w.startedAt = w.now()
	w.dataErrorStreak = 0
	w.issues = nil
	w.report = nil
	RunningGauge.Set(1)
}

// Run arms the gate and ticks until ctx is cancelled or a stop fires.
func (w *Watchdog) Run(ctx context.Context) {
	w.Start()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("watchdog-started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("run-window", w.cfg.RunWindow))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog-stopped")

			return
		case <-ticker.C:
			if !w.Tick(ctx) {
				return
			}
		}
	}
}

// Tick runs the checks in escalation order. Returns false once a stop
// has fired.
func (w *Watchdog) Tick(ctx context.Context) bool {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()

		return false
	}
	now := w.now()
	startedAt := w.startedAt
	w.mu.Unlock()

	TicksTotal.Inc()

	if w.cfg.RunWindow > 0 && now.Sub(startedAt) >= w.cfg.RunWindow {
		w.stop(ctx, StopDurationElapsed, fmt.Sprintf("run window %s elapsed", w.cfg.RunWindow))

		return false
	}

	if reason, detail, stopped := w.checkData(now); stopped {
		w.stop(ctx, reason, detail)

		return false
	}

	if w.cfg.Redeems != nil {
		if streak := w.cfg.Redeems.FailStreak(); w.cfg.RedeemThreshold > 0 && streak >= w.cfg.RedeemThreshold {
			w.stop(ctx, StopRedeemFailed, fmt.Sprintf("%d consecutive redemption failures", streak))

			return false
		}
	}

	if w.cfg.History != nil {
		if n := w.orderFailStreak(); w.cfg.OrderThreshold > 0 && n >= w.cfg.OrderThreshold {
			w.stop(ctx, StopOrderFailed, fmt.Sprintf("%d consecutive order failures", n))

			return false
		}
		if dups := w.cfg.History.DuplicateOrderMarkets(duplicateWindow); len(dups) > 0 {
			w.stop(ctx, StopDuplicateOrder, fmt.Sprintf("duplicate orders for %s within %s", strings.Join(dups, ", "), duplicateWindow))

			return false
		}
	}

	if w.cfg.Redeems != nil && w.cfg.RedeemTimeout > 0 {
		if stuck := w.cfg.Redeems.Stuck(now, w.cfg.RedeemTimeout); len(stuck) > 0 {
			w.stop(ctx, StopRedeemTimeout, fmt.Sprintf("redemption %s submitted %s ago without confirmation",
				stuck[0].ConditionID, now.Sub(stuck[0].SubmittedAt).Round(time.Second)))

			return false
		}
	}

	return true
}

// checkData advances the data-error streak: any feed reporting
// consecutive refresh failures makes the tick unhealthy.
func (w *Watchdog) checkData(now time.Time) (StopReason, string, bool) {
	var unhealthy []string
	for name, feed := range w.cfg.Feeds {
		if feed.Failures() > 0 {
			unhealthy = append(unhealthy, fmt.Sprintf("%s(%d)", name, feed.Failures()))
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(unhealthy) == 0 {
		w.dataErrorStreak = 0

		return "", "", false
	}

	w.dataErrorStreak++
	DataErrorStreak.Set(float64(w.dataErrorStreak))
	w.noteLocked(now, "data_error", strings.Join(unhealthy, ", "))

	if w.dataErrorStreak < w.cfg.StaleThreshold {
		return "", "", false
	}

	return StopDataError, fmt.Sprintf("%d consecutive unhealthy data ticks: %s", w.dataErrorStreak, strings.Join(unhealthy, ", ")), true
}

// orderFailStreak counts consecutive failed order actions from the
// newest history entries.
func (w *Watchdog) orderFailStreak() int {
	streak := 0
	for _, e := range w.cfg.History.Recent(50) {
		if e.Action != types.ActionEntry && e.Action != types.ActionSplitLeg && e.Action != types.ActionStopSell {
			continue
		}
		if e.Succeeded() {
			break
		}
		streak++
	}

	return streak
}

// noteLocked appends an anomaly to the bounded ring.
func (w *Watchdog) noteLocked(at time.Time, kind, detail string) {
	w.issues = append(w.issues, Issue{At: at, Kind: kind, Detail: detail})
	if len(w.issues) > maxIssues {
		w.issues = w.issues[len(w.issues)-maxIssues:]
	}
}

// stop disables automation, writes the report and records the stop.
func (w *Watchdog) stop(ctx context.Context, reason StopReason, detail string) {
	now := w.now()

	w.mu.Lock()
	w.running = false
	report := &Report{
		Reason:    reason,
		Detail:    detail,
		StartedAt: w.startedAt,
		StoppedAt: now,
		Issues:    append([]Issue(nil), w.issues...),
	}
	report.Counters.DataErrorStreak = w.dataErrorStreak
	if w.cfg.Redeems != nil {
		report.Counters.RedeemFailures = w.cfg.Redeems.FailStreak()
	}
	if w.cfg.History != nil {
		report.Counters.OrderFailures = w.orderFailStreak()
	}
	w.report = report
	w.mu.Unlock()

	StopsTotal.WithLabelValues(string(reason)).Inc()
	RunningGauge.Set(0)

	w.writeReport(report)

	if w.cfg.Record != nil {
		w.cfg.Record.Record(ctx, types.HistoryEntry{
			Action:  types.ActionWatchdogStop,
			Outcome: "ok",
			Detail:  fmt.Sprintf("%s: %s", reason, detail),
		})
	}

	w.logger.Error("automation-stopped",
		zap.String("reason", string(reason)),
		zap.String("detail", detail))
}

// writeReport persists the stop as JSON plus a rendered text twin.
// Reports carry the stop timestamp in the name and are retained.
func (w *Watchdog) writeReport(r *Report) {
	if w.cfg.Reports == nil {
		return
	}

	name := "reports/" + r.StoppedAt.UTC().Format("20060102-150405")
	if err := w.cfg.Reports.Save(name, r); err != nil {
		w.logger.Error("report-write-failed", zap.String("name", name), zap.Error(err))
	}
	if err := w.cfg.Reports.WriteText(name, renderReport(r)); err != nil {
		w.logger.Error("report-text-write-failed", zap.String("name", name), zap.Error(err))
	}
}

// renderReport formats the report for an operator.
func renderReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AUTOMATION STOPPED: %s\n", r.Reason)
	fmt.Fprintf(&b, "  %s\n\n", r.Detail)
	fmt.Fprintf(&b, "started:  %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "stopped:  %s\n", r.StoppedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "ran for:  %s\n\n", r.StoppedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "data error streak: %d\n", r.Counters.DataErrorStreak)
	fmt.Fprintf(&b, "redeem failures:   %d\n", r.Counters.RedeemFailures)
	fmt.Fprintf(&b, "order failures:    %d\n", r.Counters.OrderFailures)

	if len(r.Issues) > 0 {
		fmt.Fprintf(&b, "\nrecent issues:\n")
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "  %s  %-14s %s\n", issue.At.UTC().Format("15:04:05"), issue.Kind, issue.Detail)
		}
	}

	return b.String()
}

// LastReport returns the stop report once a stop has fired.
func (w *Watchdog) LastReport() (Report, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.report == nil {
		return Report{}, false
	}

	return *w.report, true
}
