package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
)

// Checker evaluates run health on a fixed interval inside serve.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker resolves the check interval and lookback window from cfg.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackHours
	}
	return c
}

// Interval is the time between checks.
func (c *Checker) Interval() time.Duration { return c.interval }

// Run checks every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().Named("monitoring").With(zap.Duration("interval", c.interval), zap.Int("lookback_hours", c.lookback))
	log.Info("monitoring: checker started")
	defer log.Info("monitoring: checker stopped")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check runs one collect-evaluate-send cycle and returns how many alerts
// fired.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect runs", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: runs healthy",
			zap.Int("runs", snap.Total),
			zap.Int("failed", snap.Failed),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: run alerts",
		zap.Int("fired", len(alerts)),
		zap.Int("delivered", sent),
		zap.Int("stale", snap.Stale),
		zap.Float64("fail_rate", snap.FailRate),
	)
	return len(alerts)
}
