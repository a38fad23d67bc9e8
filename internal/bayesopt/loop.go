package bayesopt

import (
	"time"

	"amas/internal/telemetry"
)

// WeeklyEvaluator supplies the latest weekly aggregate score for the
// optimiser's current best-guess params — provided by the stats/effect
// tracker (§4.L "Triggered by the stats/effect tracker").
type WeeklyEvaluator interface {
	EvaluateWeek(params []float64) (float64, error)
}

// Loop is the offline background tuning loop: on each tick it asks the
// optimiser for the next params to try, evaluates them against the past
// week's outcomes, and records the result (§4.L, grounded on the
// teacher's ticker-based background-updater pattern).
type Loop struct {
	optimizer *Optimizer
	store     *Store
	evaluator WeeklyEvaluator
	interval  time.Duration
	stopCh    chan struct{}
	forceCh   chan struct{}
	log       *telemetry.Logger
}

func NewLoop(optimizer *Optimizer, store *Store, evaluator WeeklyEvaluator, interval time.Duration, log *telemetry.Logger) *Loop {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Loop{
		optimizer: optimizer,
		store:     store,
		evaluator: evaluator,
		interval:  interval,
		stopCh:    make(chan struct{}),
		forceCh:   make(chan struct{}, 1),
		log:       log,
	}
}

// Start loads prior observations into the optimiser and begins the
// ticker-driven loop.
func (l *Loop) Start() error {
	obs, err := l.store.LoadAll()
	if err != nil {
		return err
	}
	for _, o := range obs {
		l.optimizer.RecordEvaluation(o)
	}

	go func() {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.performUpdate()
			case <-l.forceCh:
				l.performUpdate()
			case <-l.stopCh:
				return
			}
		}
	}()
	return nil
}

func (l *Loop) Stop() { close(l.stopCh) }

// ForceUpdate triggers an immediate iteration, used by tests/ops tooling.
func (l *Loop) ForceUpdate() {
	select {
	case l.forceCh <- struct{}{}:
	default:
	}
}

func (l *Loop) performUpdate() {
	params := l.optimizer.SuggestNext()
	value, err := l.evaluator.EvaluateWeek(params)
	if err != nil {
		if l.log != nil {
			l.log.Warn("bayesopt evaluation failed", "error", err.Error())
		}
		return
	}
	obs := Observation{Params: params, Value: value}
	l.optimizer.RecordEvaluation(obs)
	if err := l.store.Save(obs); err != nil && l.log != nil {
		l.log.Warn("bayesopt failed to persist observation", "error", err.Error())
	}
}
