package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"metric-anomaly-engine/analytics"
	"metric-anomaly-engine/models"
)

const keyPrefix = "detection:"

type Options struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	TTL          time.Duration
}

// RedisClient keeps detection results for TTL. It implements
// analytics.ResultStore.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

var _ analytics.ResultStore = (*RedisClient)(nil)

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisClient{client: rdb, ttl: ttl}, nil
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// MarkPending records an accepted asynchronous job.
func (rc *RedisClient) MarkPending(ctx context.Context, jobID string, kind analytics.Kind) error {
	return rc.put(ctx, models.AnalysisResult{
		JobID:       jobID,
		Detector:    string(kind),
		Status:      models.StatusPending,
		ProcessedAt: time.Now().UTC(),
	})
}

func (rc *RedisClient) SaveOutcome(ctx context.Context, outcome analytics.Outcome) error {
	return rc.put(ctx, models.NewAnalysisResult(outcome))
}

// GetResult returns nil without an error when the job is unknown or expired.
func (rc *RedisClient) GetResult(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	val, err := rc.client.Get(ctx, resultKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeResult(val)
}

func (rc *RedisClient) put(ctx context.Context, result models.AnalysisResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, resultKey(result.JobID), data, rc.ttl).Err()
}

func resultKey(jobID string) string {
	return keyPrefix + jobID
}

func encodeResult(result models.AnalysisResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result %s: %w", result.JobID, err)
	}
	return data, nil
}

func decodeResult(data []byte) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}
