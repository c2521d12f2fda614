// Package monitor consumes telemetry from the bus and runs the full
// evaluation cycle per converter: simulate, diagnose, alert, recommend,
// then publish and persist the results.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Praj460/PowerPulse-AI/internal/alerting"
	"github.com/Praj460/PowerPulse-AI/internal/config"
	"github.com/Praj460/PowerPulse-AI/internal/diag"
	"github.com/Praj460/PowerPulse-AI/internal/metrics"
	"github.com/Praj460/PowerPulse-AI/internal/notify"
	"github.com/Praj460/PowerPulse-AI/internal/recommend"
	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
	"github.com/Praj460/PowerPulse-AI/pkg/storage"
)

// entity is the single-writer state for one converter; its mutex
// serializes evaluation cycles and acknowledgements.
type entity struct {
	mu      sync.Mutex
	history []dab.Sample
	alerts  *alerting.Store
	cycles  int
}

type Runner struct {
	cfg       *config.MonitorConfig
	nc        *nats.Conn
	sim       *sim.Engine
	diag      *diag.Engine
	alerting  *alerting.Engine
	recommend *recommend.Engine
	storage   *storage.Storage
	notifiers []notify.Notifier

	mu       sync.Mutex
	entities map[string]*entity
	wg       sync.WaitGroup
}

func New(cfg *config.MonitorConfig) (*Runner, error) {
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage.PostgresDSN)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		nc.Close()
		store.Close()
		return nil, err
	}

	runner, err := newRunner(cfg, nc, store)
	if err != nil {
		nc.Close()
		store.Close()
		return nil, err
	}
	return runner, nil
}

func newRunner(cfg *config.MonitorConfig, nc *nats.Conn, store *storage.Storage) (*Runner, error) {
	simEngine, err := sim.New(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("simulation engine: %w", err)
	}
	diagEngine, err := diag.New(cfg.Diagnostics, simEngine)
	if err != nil {
		return nil, fmt.Errorf("diagnostic engine: %w", err)
	}
	alertEngine, err := alerting.New(cfg.Alerting)
	if err != nil {
		return nil, fmt.Errorf("alerting engine: %w", err)
	}
	recEngine, err := recommend.New(cfg.Recommend, simEngine)
	if err != nil {
		return nil, fmt.Errorf("recommendation engine: %w", err)
	}

	var notifiers []notify.Notifier
	if nc != nil {
		notifiers = append(notifiers, notify.NewNATS(nc, cfg.NATS.SubjectAlerts))
	}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(
			cfg.Notify.WebhookURL,
			time.Duration(cfg.Notify.TimeoutSeconds)*time.Second,
			uint32(cfg.Notify.BreakerMaxFailures),
			time.Duration(cfg.Notify.BreakerResetSeconds)*time.Second,
		))
	}

	return &Runner{
		cfg:       cfg,
		nc:        nc,
		sim:       simEngine,
		diag:      diagEngine,
		alerting:  alertEngine,
		recommend: recEngine,
		storage:   store,
		notifiers: notifiers,
		entities:  map[string]*entity{},
	}, nil
}

func (r *Runner) Close() {
	// Wait for pending storage and notification work
	r.wg.Wait()

	if r.storage != nil {
		if err := r.storage.Close(); err != nil {
			log.Printf("failed to close storage: %v", err)
		}
	}

	if r.nc != nil && !r.nc.IsClosed() {
		r.nc.Drain()
		r.nc.Close()
	}
}

func (r *Runner) Start(ctx context.Context) error {
	_, err := r.nc.QueueSubscribe(r.cfg.NATS.SubjectTelemetry, r.cfg.NATS.QueueGroup, r.handleMeasurement)
	if err != nil {
		return err
	}

	_, err = r.nc.Subscribe(r.cfg.NATS.SubjectControl, r.handleControl)
	if err != nil {
		return err
	}

	if err := r.nc.Flush(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	return nil
}

// Checks exposes dependency probes for the readiness endpoint.
func (r *Runner) Checks() map[string]func() error {
	checks := map[string]func() error{}
	if r.nc != nil {
		checks["nats"] = func() error {
			if !r.nc.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		}
	}
	if r.storage != nil {
		checks["postgres"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return r.storage.Ping(ctx)
		}
	}
	return checks
}

func (r *Runner) entity(converterID string) *entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent := r.entities[converterID]
	if ent == nil {
		ent = &entity{alerts: alerting.NewStore(converterID)}
		r.entities[converterID] = ent
	}
	return ent
}

// cycleOutput carries everything one evaluation cycle produced.
type cycleOutput struct {
	sample dab.Sample
	record dab.HealthRecord
	alerts alerting.Result
	recs   []dab.Recommendation
}

func (r *Runner) handleMeasurement(msg *nats.Msg) {
	var m dab.Measurement
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		metrics.TelemetryMessages.WithLabelValues("invalid").Inc()
		log.Printf("decode measurement: %v", err)
		return
	}
	if err := m.Valid(); err != nil {
		metrics.TelemetryMessages.WithLabelValues("invalid").Inc()
		log.Printf("reject measurement from %q: %v", m.ConverterID, err)
		return
	}
	metrics.TelemetryMessages.WithLabelValues("ok").Inc()

	out, err := r.evaluate(m)
	if err != nil {
		log.Printf("evaluate %s: %v", m.ConverterID, err)
		return
	}

	metrics.HealthScore.WithLabelValues(m.ConverterID).Set(out.record.HealthScore)
	for _, a := range out.record.Anomalies {
		metrics.Anomalies.WithLabelValues(a.Quantity, string(a.Kind)).Inc()
	}
	for _, a := range out.alerts.Changed {
		metrics.Alerts.WithLabelValues(string(a.Kind), string(a.State)).Inc()
	}
	for _, rec := range out.recs {
		metrics.Recommendations.WithLabelValues(string(rec.Objective)).Inc()
	}

	if r.nc != nil {
		payload, err := json.Marshal(out.record)
		if err == nil {
			if err := r.nc.Publish(r.cfg.NATS.SubjectHealth, payload); err != nil {
				log.Printf("publish health: %v", err)
			}
		}
	}

	r.persist(m.ConverterID, out)
}

// evaluate runs one cycle under the converter's entity lock.
func (r *Runner) evaluate(m dab.Measurement) (cycleOutput, error) {
	ent := r.entity(m.ConverterID)
	ent.mu.Lock()

	start := time.Now()
	result, err := r.sim.Simulate(m.Point)
	if err != nil {
		ent.mu.Unlock()
		return cycleOutput{}, fmt.Errorf("simulate: %w", err)
	}
	metrics.CycleLatency.WithLabelValues("simulate").Observe(time.Since(start).Seconds())

	sample := dab.Sample{Point: m.Point, Result: result}
	ent.history = append(ent.history, sample)
	if len(ent.history) > r.cfg.Monitor.HistoryLimit {
		ent.history = ent.history[1:]
	}

	start = time.Now()
	record, err := r.diag.Evaluate(m.ConverterID, ent.history)
	if err != nil {
		ent.mu.Unlock()
		return cycleOutput{}, fmt.Errorf("diagnose: %w", err)
	}
	metrics.CycleLatency.WithLabelValues("diagnose").Observe(time.Since(start).Seconds())

	start = time.Now()
	alertRes := r.alerting.Evaluate(ent.alerts, &record)
	metrics.CycleLatency.WithLabelValues("alert").Observe(time.Since(start).Seconds())

	ent.cycles++
	review := ent.cycles%r.cfg.Monitor.ReviewIntervalCycles == 0
	ent.mu.Unlock()

	start = time.Now()
	recs := r.buildRecommendations(&record, alertRes, review)
	metrics.CycleLatency.WithLabelValues("recommend").Observe(time.Since(start).Seconds())

	return cycleOutput{sample: sample, record: record, alerts: alertRes, recs: recs}, nil
}

// buildRecommendations searches on freshly raised alerts, plus an
// unprompted efficiency review every review interval.
func (r *Runner) buildRecommendations(record *dab.HealthRecord, alertRes alerting.Result, review bool) []dab.Recommendation {
	now := time.Unix(0, record.TsUnixNs).UTC()

	var out []dab.Recommendation
	for i := range alertRes.Changed {
		a := &alertRes.Changed[i]
		if a.State != dab.StateActive || !a.RaisedAt.Equal(now) {
			continue
		}
		recs, err := r.recommend.ForAlert(a, record.Sample.Point)
		if err != nil {
			log.Printf("recommend for alert %s: %v", a.ID, err)
			continue
		}
		out = append(out, recs...)
	}

	if review && len(out) == 0 {
		recs, err := r.recommend.PeriodicReview(record.ConverterID, record.Sample.Point)
		if err != nil {
			log.Printf("periodic review %s: %v", record.ConverterID, err)
		} else {
			out = append(out, recs...)
		}
	}

	return out
}

func (r *Runner) persist(converterID string, out cycleOutput) {
	if r.storage == nil && len(out.alerts.Notifications) == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if r.storage != nil {
			start := time.Now()
			seenAt := time.Unix(0, out.sample.Point.TsUnixNs).UTC()
			if err := r.storage.UpsertConverter(ctx, converterID, seenAt); err != nil {
				log.Printf("failed to upsert converter: %v", err)
			}
			if err := r.storage.StoreSample(ctx, converterID, out.sample); err != nil {
				log.Printf("failed to store sample: %v", err)
			}
			if err := r.storage.StoreHealthRecord(ctx, out.record); err != nil {
				log.Printf("failed to store health record: %v", err)
			}
			for _, a := range out.alerts.Changed {
				if err := r.storage.UpsertAlert(ctx, a); err != nil {
					log.Printf("failed to store alert %s: %v", a.ID, err)
				}
			}
			if err := r.storage.StoreRecommendations(ctx, out.recs); err != nil {
				log.Printf("failed to store recommendations: %v", err)
			}
			metrics.StorageLatency.WithLabelValues("cycle").Observe(time.Since(start).Seconds())
		}

		for _, n := range out.alerts.Notifications {
			for _, notifier := range r.notifiers {
				if err := notifier.Notify(ctx, n); err != nil {
					metrics.Notifications.WithLabelValues(notifier.Name(), "error").Inc()
					log.Printf("notify %s: %v", notifier.Name(), err)
				} else {
					metrics.Notifications.WithLabelValues(notifier.Name(), "sent").Inc()
				}
			}
		}
	}()
}

func (r *Runner) handleControl(msg *nats.Msg) {
	var cmd dab.ControlCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.Printf("decode control command: %v", err)
		return
	}
	if cmd.Action != dab.ActionAcknowledge || cmd.AlertID == "" {
		return
	}

	alert, ok := r.acknowledge(cmd.AlertID, cmd.Actor, time.Now().UTC())
	if !ok {
		// Another instance may own this converter's alerts.
		return
	}

	metrics.Alerts.WithLabelValues(string(alert.Kind), string(alert.State)).Inc()

	if r.storage != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.storage.UpsertAlert(ctx, alert); err != nil {
				log.Printf("failed to store acknowledgement: %v", err)
			}
		}()
	}
}

func (r *Runner) acknowledge(alertID, actor string, now time.Time) (dab.Alert, bool) {
	r.mu.Lock()
	ents := make([]*entity, 0, len(r.entities))
	for _, ent := range r.entities {
		ents = append(ents, ent)
	}
	r.mu.Unlock()

	for _, ent := range ents {
		ent.mu.Lock()
		alert, err := r.alerting.Acknowledge(ent.alerts, alertID, actor, now)
		ent.mu.Unlock()
		if err == nil {
			return alert, true
		}
	}
	return dab.Alert{}, false
}
