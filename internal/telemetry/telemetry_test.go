package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/talgya/speedrunner/internal/engine"
)

var at = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type fakeRedis struct {
	sets      map[string]string
	lists     map[string][]string
	published []string
	trims     []int64
	failSet   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: map[string]string{}, lists: map[string][]string{}}
}

func asString(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	return ""
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	if f.failSet {
		return redis.NewStatusResult("", errors.New("READONLY"))
	}
	f.sets[key] = asString(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([]string{asString(v)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims = append(f.trims, stop)
	if l := f.lists[key]; int64(len(l)) > stop+1 {
		f.lists[key] = l[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.published = append(f.published, channel+" "+asString(message))
	return redis.NewIntResult(1, nil)
}

func decodeEvent(t *testing.T, s string) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal([]byte(s), &ev); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return ev
}

func TestRedisMirrorRunLifecycle(t *testing.T) {
	fr := newFakeRedis()
	m := newRedisMirror(fr, RedisConfig{Prefix: "sr:", RecentTicks: 2})
	m.now = func() time.Time { return at }

	run := engine.RunSummary{ID: "run-1", StartedAt: at, Outcome: engine.InFlight}
	if err := m.StartRun(run); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := m.RecordTick(engine.TickRecord{RunID: "run-1", Tick: i, Action: "gather_wood"}); err != nil {
			t.Fatal(err)
		}
	}
	run.Outcome = engine.Timeout
	run.Ticks = 3
	if err := m.FinishRun(run); err != nil {
		t.Fatal(err)
	}

	ticks := fr.lists["sr:ticks:run-1"]
	if len(ticks) != 2 {
		t.Fatalf("kept %d ticks, want 2", len(ticks))
	}
	if ev := decodeEvent(t, ticks[0]); ev.Tick == nil || ev.Tick.Tick != 3 {
		t.Errorf("newest tick = %+v", ev)
	}

	var final engine.RunSummary
	if err := json.Unmarshal([]byte(fr.sets["sr:run:run-1"]), &final); err != nil {
		t.Fatal(err)
	}
	if final.Outcome != engine.Timeout || final.Ticks != 3 {
		t.Errorf("stored run = %+v", final)
	}
	if fr.sets["sr:run:current"] != fr.sets["sr:run:run-1"] {
		t.Error("current run not updated on finish")
	}

	if len(fr.published) != 5 {
		t.Fatalf("published %d events, want 5", len(fr.published))
	}
	for _, p := range fr.published {
		if !strings.HasPrefix(p, "sr:events ") {
			t.Errorf("published on wrong channel: %q", p)
		}
	}
	first := decodeEvent(t, strings.TrimPrefix(fr.published[0], "sr:events "))
	if first.Kind != KindRunStarted || first.RunID != "run-1" || !first.At.Equal(at) {
		t.Errorf("first event = %+v", first)
	}
}

func TestRedisMirrorDefaults(t *testing.T) {
	m := newRedisMirror(newFakeRedis(), RedisConfig{})
	if m.prefix != "speedrunner:" || m.recent != 100 || m.timeout != 2*time.Second {
		t.Errorf("defaults = %q %d %s", m.prefix, m.recent, m.timeout)
	}
}

func TestRedisMirrorSurfacesErrors(t *testing.T) {
	fr := newFakeRedis()
	fr.failSet = true
	m := newRedisMirror(fr, RedisConfig{})
	if err := m.StartRun(engine.RunSummary{ID: "x"}); err == nil {
		t.Error("set failure swallowed")
	}
	if len(fr.published) != 0 {
		t.Error("published after a failed set")
	}
}

func TestNewRedisMirrorNeedsAddress(t *testing.T) {
	if _, err := NewRedisMirror(RedisConfig{}); err == nil {
		t.Error("empty address accepted")
	}
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	fail   error
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.fail != nil {
		return f.fail
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisherRoutesByKind(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, AMQPConfig{Exchange: "runs"})
	p.now = func() time.Time { return at }

	run := engine.RunSummary{ID: "r9"}
	p.StartRun(run)
	p.RecordTick(engine.TickRecord{RunID: "r9", Tick: 1})
	p.FinishRun(run)

	if len(ch.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (ticks disabled)", len(ch.sent))
	}
	if ch.sent[0].key != KindRunStarted || ch.sent[1].key != KindRunFinished {
		t.Errorf("keys = %s, %s", ch.sent[0].key, ch.sent[1].key)
	}
	msg := ch.sent[0].msg
	if ch.sent[0].exchange != "runs" || msg.ContentType != "application/json" ||
		msg.DeliveryMode != amqp.Persistent || !msg.Timestamp.Equal(at) {
		t.Errorf("message = %+v", ch.sent[0])
	}
	if ev := decodeEvent(t, string(msg.Body)); ev.Run == nil || ev.Run.ID != "r9" {
		t.Errorf("body = %s", msg.Body)
	}
	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("Close = %v, closed = %v", err, ch.closed)
	}
}

func TestPublisherTicksWhenEnabled(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, AMQPConfig{Ticks: true})
	if err := p.RecordTick(engine.TickRecord{RunID: "r", Tick: 4}); err != nil {
		t.Fatal(err)
	}
	if len(ch.sent) != 1 || ch.sent[0].key != KindTick || ch.sent[0].exchange != "speedrunner" {
		t.Errorf("sent = %+v", ch.sent)
	}
}

func TestPublisherWrapsFailure(t *testing.T) {
	down := errors.New("channel closed")
	p := newPublisher(&fakeChannel{fail: down}, AMQPConfig{})
	if err := p.StartRun(engine.RunSummary{ID: "r"}); !errors.Is(err, down) {
		t.Errorf("err = %v", err)
	}
}

type countingRecorder struct {
	starts, ticks, finishes int
	err                     error
}

func (c *countingRecorder) StartRun(engine.RunSummary) error   { c.starts++; return c.err }
func (c *countingRecorder) RecordTick(engine.TickRecord) error { c.ticks++; return c.err }
func (c *countingRecorder) FinishRun(engine.RunSummary) error  { c.finishes++; return c.err }

func TestFanoutReachesEveryRecorder(t *testing.T) {
	broken := &countingRecorder{err: errors.New("down")}
	ok := &countingRecorder{}
	f := Fanout{broken, ok}

	if err := f.StartRun(engine.RunSummary{}); err == nil {
		t.Error("failure not reported")
	}
	if err := f.RecordTick(engine.TickRecord{}); !errors.Is(err, broken.err) {
		t.Errorf("err = %v", err)
	}
	f.FinishRun(engine.RunSummary{})

	if ok.starts != 1 || ok.ticks != 1 || ok.finishes != 1 {
		t.Errorf("healthy recorder saw %+v", ok)
	}
	if err := (Fanout{ok}).StartRun(engine.RunSummary{}); err != nil {
		t.Errorf("healthy fanout err = %v", err)
	}
}
