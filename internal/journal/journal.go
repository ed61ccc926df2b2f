// Package journal keeps the most recent analysis results of each session in
// Redis and optionally republishes session events on a pub/sub channel.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/vision"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 10 * time.Minute
	DefaultMaxResults = 200
	writeTimeout      = 2 * time.Second
)

type Config struct {
	// TTL is refreshed on every write, so results outlive their session by TTL.
	TTL        time.Duration
	MaxResults int
	Publish    bool
}

type Journal struct {
	redis      *redis.Client
	ttl        time.Duration
	maxResults int
	publish    bool
	logger     *slog.Logger

	pending sync.WaitGroup
}

func New(redisClient *redis.Client, cfg Config, logger *slog.Logger) *Journal {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		redis:      redisClient,
		ttl:        cfg.TTL,
		maxResults: cfg.MaxResults,
		publish:    cfg.Publish,
		logger:     logger.With("component", "result-journal"),
	}
}

func resultsKey(sessionID string) string {
	return fmt.Sprintf("vision:session:%s:results", sessionID)
}

func EventsChannel(sessionID string) string {
	return fmt.Sprintf("vision:session:%s:events", sessionID)
}

type entry struct {
	At     time.Time              `json:"at"`
	Result *vision.AnalysisResult `json:"result"`
}

// Append records one result, trimming the session's list to MaxResults.
func (j *Journal) Append(ctx context.Context, sessionID string, res *vision.AnalysisResult, at time.Time) error {
	data, err := json.Marshal(entry{At: at, Result: res})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	key := resultsKey(sessionID)
	pipe := j.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-j.maxResults-1))
	pipe.Expire(ctx, key, j.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit results, newest first.
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]vision.AnalysisResult, error) {
	if limit <= 0 {
		limit = j.maxResults
	}

	members, err := j.redis.ZRevRange(ctx, resultsKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	results := make([]vision.AnalysisResult, 0, len(members))
	for _, m := range members {
		var e entry
		if err := json.Unmarshal([]byte(m), &e); err != nil || e.Result == nil {
			j.logger.Warn("skipping malformed journal entry", "session_id", sessionID, "error", err)
			continue
		}
		results = append(results, *e.Result)
	}
	return results, nil
}

func (j *Journal) Count(ctx context.Context, sessionID string) (int64, error) {
	return j.redis.ZCard(ctx, resultsKey(sessionID)).Result()
}

func (j *Journal) Delete(ctx context.Context, sessionID string) error {
	return j.redis.Del(ctx, resultsKey(sessionID)).Err()
}

func (j *Journal) Publish(ctx context.Context, ev pipeline.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return j.redis.Publish(ctx, EventsChannel(ev.SessionID), data).Err()
}

// OnEvent writes in the background so the session never waits on Redis.
func (j *Journal) OnEvent(ev pipeline.Event) {
	if ev.Type != pipeline.EventResult && ev.Type != pipeline.EventClosed && !j.publish {
		return
	}

	j.pending.Add(1)
	go func() {
		defer j.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		j.handle(ctx, ev)
	}()
}

func (j *Journal) handle(ctx context.Context, ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventResult:
		if ev.Result != nil {
			if err := j.Append(ctx, ev.SessionID, ev.Result, ev.Timestamp); err != nil {
				j.logger.Error("failed to append result", "session_id", ev.SessionID, "error", err)
			}
		}
	case pipeline.EventClosed:
		if err := j.redis.Expire(ctx, resultsKey(ev.SessionID), j.ttl).Err(); err != nil {
			j.logger.Error("failed to set result expiry", "session_id", ev.SessionID, "error", err)
		}
	}

	if j.publish {
		if err := j.Publish(ctx, ev); err != nil {
			j.logger.Warn("failed to publish event", "session_id", ev.SessionID, "type", ev.Type, "error", err)
		}
	}
}

// Wait blocks until background writes have finished.
func (j *Journal) Wait() {
	j.pending.Wait()
}
