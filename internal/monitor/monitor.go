package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"defiwatch-telegram-bot/internal/types"
	"defiwatch-telegram-bot/lib/helpers"
	"defiwatch-telegram-bot/lib/translation"

	log "github.com/sirupsen/logrus"
)

// AlertStore is the slice of alert persistence the monitor needs. The store
// is the single source of truth for is_active and last_fired_at.
type AlertStore interface {
	GetActiveAlerts() ([]types.Alert, error)
	GetAlert(ownerID, alertID string) (*types.Alert, error)
	UpdateLastFired(alertID string, firedAt time.Time) error
}

// MetricsProvider resolves the current value of a position metric.
type MetricsProvider interface {
	GetMetric(ctx context.Context, ownerID string, widget types.WidgetType) (float64, error)
}

// Notifier delivers a message to a destination on the messaging channel.
// Delivery must respect the context deadline.
type Notifier interface {
	Send(ctx context.Context, target, message string) error
}

// Config configuration of the monitor service
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	OnCycle      func(CycleReport)
}

// CycleReport aggregates the outcome of one evaluation cycle. Failures are
// captured per alert so one bad alert never aborts the rest.
type CycleReport struct {
	Evaluated int
	Fired     int
	Cooldown  int
	Errors    []AlertError
}

type AlertError struct {
	AlertID string
	Err     error
}

// TestResult is the outcome of a forced single evaluation.
type TestResult struct {
	Fired bool    `json:"fired"`
	Value float64 `json:"value"`
}

// Service owns the monitoring lifecycle: one recurring background cycle
// over all active alerts, plus owner-triggered single-alert tests. Safe for
// concurrent Start/Stop/IsActive.
type Service struct {
	store    AlertStore
	metrics  MetricsProvider
	notifier Notifier
	config   Config
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewService(store AlertStore, metrics MetricsProvider, notifier Notifier, config Config) *Service {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 12 * time.Second
	}
	return &Service{
		store:    store,
		metrics:  metrics,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
}

// Start begins the recurring evaluation cycle. Calling Start on a running
// service is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Debug("monitor already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)

	log.Info("🚀 Alert monitor started.")
}

// Stop prevents new cycles from starting. In-flight evaluations are allowed
// to finish; calling Stop on a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false

	log.Info("Alert monitor stopped.")
}

// IsActive reports whether the recurring cycle is running.
func (s *Service) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) run(stop chan struct{}) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		report := s.RunCycle()
		if s.config.OnCycle != nil {
			s.config.OnCycle(report)
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// RunCycle evaluates every active alert once. Alerts are evaluated
// independently and concurrently, each under a bounded timeout, so a hung
// upstream call for one alert cannot stall the cycle.
func (s *Service) RunCycle() CycleReport {
	log.Debug("🔄 Checking alerts...")

	var report CycleReport

	alerts, err := s.store.GetActiveAlerts()
	if err != nil {
		log.Errorf("❌ Failed to fetch alerts from the database: %v", err)
		report.Errors = append(report.Errors, AlertError{Err: err})
		return report
	}

	type result struct {
		alertID string
		outcome evalOutcome
		err     error
	}

	results := make(chan result, len(alerts))
	var wg sync.WaitGroup

	for _, alert := range alerts {
		wg.Add(1)
		go func(alert types.Alert) {
			defer wg.Done()
			outcome, err := s.safeEvaluate(alert, false)
			results <- result{alertID: alert.ID, outcome: outcome, err: err}
		}(alert)
	}

	wg.Wait()
	close(results)

	for r := range results {
		report.Evaluated++
		switch {
		case r.err != nil:
			log.Errorf("❌ Alert %s evaluation failed: %v", r.alertID, r.err)
			report.Errors = append(report.Errors, AlertError{AlertID: r.alertID, Err: r.err})
		case r.outcome == outcomeFired:
			report.Fired++
		case r.outcome == outcomeCooldown:
			report.Cooldown++
		}
	}

	log.Debugf("✅ Alert check completed: %d evaluated, %d fired, %d in cooldown, %d errors",
		report.Evaluated, report.Fired, report.Cooldown, len(report.Errors))
	return report
}

// TestAlert loads one owner-scoped alert and forces a single evaluation,
// bypassing the cooldown gate. Delivery runs synchronously and dispatch
// failures surface to the caller. last_fired_at is left alone so a manual
// test never suppresses a real notification.
func (s *Service) TestAlert(ownerID, alertID string) (*TestResult, error) {
	alert, err := s.store.GetAlert(ownerID, alertID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.FetchTimeout)
	defer cancel()

	value, err := s.metrics.GetMetric(ctx, alert.OwnerID, alert.WidgetType)
	if err != nil {
		return nil, err
	}

	satisfied, err := Evaluate(value, alert.Condition, alert.Threshold)
	if err != nil {
		return nil, err
	}
	if !satisfied {
		return &TestResult{Fired: false, Value: value}, nil
	}

	if err := s.notifier.Send(ctx, alert.NotifyTarget, buildMessage(alert, value)); err != nil {
		return nil, err
	}
	return &TestResult{Fired: true, Value: value}, nil
}

type evalOutcome int

const (
	outcomeNoMatch evalOutcome = iota
	outcomeCooldown
	outcomeFired
)

// safeEvaluate isolates panics from a single alert evaluation.
func (s *Service) safeEvaluate(alert types.Alert, force bool) (outcome evalOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			err = fmt.Errorf("panic during evaluation: %v\n%s", r, stackBuf[:stackSize])
		}
	}()
	return s.evaluateAlert(alert, force)
}

func (s *Service) evaluateAlert(alert types.Alert, force bool) (evalOutcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.FetchTimeout)
	defer cancel()

	value, err := s.metrics.GetMetric(ctx, alert.OwnerID, alert.WidgetType)
	if err != nil {
		return outcomeNoMatch, err
	}

	satisfied, err := Evaluate(value, alert.Condition, alert.Threshold)
	if err != nil {
		return outcomeNoMatch, err
	}
	if !satisfied {
		return outcomeNoMatch, nil
	}

	now := s.now()
	if !force && !CooldownElapsed(alert.LastFiredAt, alert.CooldownMinutes, now) {
		log.Debugf("alert %s satisfied but within cooldown, skipping", alert.ID)
		return outcomeCooldown, nil
	}

	if err := s.notifier.Send(ctx, alert.NotifyTarget, buildMessage(&alert, value)); err != nil {
		// last_fired_at stays untouched so the next cycle retries
		return outcomeNoMatch, err
	}

	if err := s.store.UpdateLastFired(alert.ID, now); err != nil {
		return outcomeFired, err
	}

	log.Infof("✅ Alert %q fired for owner %s (%s %s %s, current %s)",
		alert.AlertName, alert.OwnerID, alert.WidgetType, alert.Condition,
		helpers.FormatMetricValue(alert.Threshold, false),
		helpers.FormatMetricValue(value, false))
	return outcomeFired, nil
}

// buildMessage renders the notification body: the owner's custom message if
// set, else a generated default naming widget, condition, threshold and the
// current value.
func buildMessage(alert *types.Alert, value float64) string {
	if alert.CustomMessage != "" {
		return helpers.EscapeMarkdownV2(alert.CustomMessage)
	}

	return translation.Translate("🚨 *Position Alert: %s*\n\n*%s* is %s *%s*\nCurrent value: *%s*",
		helpers.EscapeMarkdownV2(alert.AlertName),
		helpers.EscapeMarkdownV2(widgetLabel(alert.WidgetType)),
		conditionLabel(alert.Condition),
		formatWidgetValue(alert.WidgetType, alert.Threshold),
		formatWidgetValue(alert.WidgetType, value),
	)
}

// formatWidgetValue picks the rendering per widget, APY values read as
// percentages.
func formatWidgetValue(w types.WidgetType, value float64) string {
	if w == types.WidgetNetAPY {
		return helpers.FormatPercent(value, true)
	}
	return helpers.FormatMetricValue(value, true)
}

func widgetLabel(w types.WidgetType) string {
	switch w {
	case types.WidgetHealthFactor:
		return "Health Factor"
	case types.WidgetLTV:
		return "LTV"
	case types.WidgetNetAPY:
		return "Net APY"
	}
	return string(w)
}

func conditionLabel(c types.Condition) string {
	switch c {
	case types.ConditionGreaterThan:
		return translation.Translate("above")
	case types.ConditionLessThan:
		return translation.Translate("below")
	case types.ConditionEquals:
		return translation.Translate("equal to")
	}
	return string(c)
}
