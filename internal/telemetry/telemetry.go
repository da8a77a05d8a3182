// Package telemetry forwards run history to sinks outside the process:
// a Redis mirror for dashboards and an AMQP exchange for downstream
// consumers. Both are optional and neither can stop a run.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/talgya/speedrunner/internal/engine"
)

// Config enables the external sinks. An empty address disables a sink.
type Config struct {
	Redis RedisConfig `yaml:"redis"`
	AMQP  AMQPConfig  `yaml:"amqp"`
}

// Event is the wire form shared by both sinks.
type Event struct {
	Kind  string             `json:"kind"`
	RunID string             `json:"run_id"`
	At    time.Time          `json:"at"`
	Run   *engine.RunSummary `json:"run,omitempty"`
	Tick  *engine.TickRecord `json:"tick,omitempty"`
}

// Event kinds, also used as AMQP routing keys.
const (
	KindRunStarted  = "run.started"
	KindTick        = "run.tick"
	KindRunFinished = "run.finished"
)

func runEvent(kind string, r engine.RunSummary, at time.Time) Event {
	return Event{Kind: kind, RunID: r.ID, At: at, Run: &r}
}

func tickEvent(t engine.TickRecord, at time.Time) Event {
	return Event{Kind: KindTick, RunID: t.RunID, At: at, Tick: &t}
}

// Fanout sends every record to each recorder in order. One failing
// recorder does not keep the others from seeing the record.
type Fanout []engine.Recorder

func (f Fanout) StartRun(r engine.RunSummary) error {
	return f.each(func(rec engine.Recorder) error { return rec.StartRun(r) })
}

func (f Fanout) RecordTick(t engine.TickRecord) error {
	return f.each(func(rec engine.Recorder) error { return rec.RecordTick(t) })
}

func (f Fanout) FinishRun(r engine.RunSummary) error {
	return f.each(func(rec engine.Recorder) error { return rec.FinishRun(r) })
}

func (f Fanout) each(call func(engine.Recorder) error) error {
	var errs []error
	for i, rec := range f {
		if err := call(rec); err != nil {
			errs = append(errs, fmt.Errorf("recorder %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
