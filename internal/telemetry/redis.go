package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talgya/speedrunner/internal/engine"
)

// RedisConfig locates the mirror.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	Timeout     time.Duration `yaml:"timeout"`
	RecentTicks int           `yaml:"recent_ticks"`
}

// redisClient is the slice of *redis.Client the mirror uses.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisMirror keeps the current run, its latest ticks and finished runs in
// Redis and publishes every event on one channel.
//
// Keys, under Prefix:
//
//	run:current    the running run's summary
//	run:<id>       a finished run's summary
//	ticks:<id>     the newest RecentTicks ticks, newest first
//	events         pub/sub channel carrying every Event
type RedisMirror struct {
	client  redisClient
	closer  func() error
	prefix  string
	timeout time.Duration
	recent  int
	now     func() time.Time
}

// NewRedisMirror connects and pings.
func NewRedisMirror(cfg RedisConfig) (*RedisMirror, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	m := newRedisMirror(client, cfg)
	m.closer = client.Close

	ctx, cancel := m.context()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return m, nil
}

func newRedisMirror(client redisClient, cfg RedisConfig) *RedisMirror {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "speedrunner:"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	recent := cfg.RecentTicks
	if recent <= 0 {
		recent = 100
	}
	return &RedisMirror{
		client:  client,
		closer:  func() error { return nil },
		prefix:  prefix,
		timeout: timeout,
		recent:  recent,
		now:     time.Now,
	}
}

func (m *RedisMirror) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

func (m *RedisMirror) StartRun(r engine.RunSummary) error {
	ctx, cancel := m.context()
	defer cancel()

	ev, err := json.Marshal(runEvent(KindRunStarted, r, m.now()))
	if err != nil {
		return err
	}
	run, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := m.client.Set(ctx, m.prefix+"run:current", run, 0).Err(); err != nil {
		return fmt.Errorf("redis set current run: %w", err)
	}
	return m.publish(ctx, ev)
}

func (m *RedisMirror) RecordTick(t engine.TickRecord) error {
	ctx, cancel := m.context()
	defer cancel()

	ev, err := json.Marshal(tickEvent(t, m.now()))
	if err != nil {
		return err
	}
	key := m.prefix + "ticks:" + t.RunID
	if err := m.client.LPush(ctx, key, ev).Err(); err != nil {
		return fmt.Errorf("redis push tick: %w", err)
	}
	if err := m.client.LTrim(ctx, key, 0, int64(m.recent-1)).Err(); err != nil {
		return fmt.Errorf("redis trim ticks: %w", err)
	}
	return m.publish(ctx, ev)
}

func (m *RedisMirror) FinishRun(r engine.RunSummary) error {
	ctx, cancel := m.context()
	defer cancel()

	ev, err := json.Marshal(runEvent(KindRunFinished, r, m.now()))
	if err != nil {
		return err
	}
	run, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := m.client.Set(ctx, m.prefix+"run:"+r.ID, run, 0).Err(); err != nil {
		return fmt.Errorf("redis set run: %w", err)
	}
	if err := m.client.Set(ctx, m.prefix+"run:current", run, 0).Err(); err != nil {
		return fmt.Errorf("redis set current run: %w", err)
	}
	return m.publish(ctx, ev)
}

func (m *RedisMirror) publish(ctx context.Context, ev []byte) error {
	if err := m.client.Publish(ctx, m.prefix+"events", ev).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the connection.
func (m *RedisMirror) Close() error {
	return m.closer()
}
