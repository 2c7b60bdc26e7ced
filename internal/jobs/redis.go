package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultKeyPrefix = "transcriber"
	defaultJobTTL    = 7 * 24 * time.Hour
)

// RedisConfig configures the Redis job store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Redis stores job records as JSON values with a per-request index set
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	logrus.WithField("addr", cfg.Addr).Info("Redis job store connected")
	return newRedisWithClient(client, cfg), nil
}

func newRedisWithClient(client *redis.Client, cfg RedisConfig) *Redis {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, id)
}

func (r *Redis) requestKey(requestID string) string {
	return fmt.Sprintf("%s:request:%s:jobs", r.prefix, requestID)
}

func (r *Redis) Save(ctx context.Context, job Job) error {
	if job.ID == "" {
		return fmt.Errorf("save job: empty id")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.jobKey(job.ID), data, r.ttl)
	if job.RequestID != "" {
		pipe.SAdd(ctx, r.requestKey(job.RequestID), job.ID)
		pipe.Expire(ctx, r.requestKey(job.RequestID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// ListByRequest returns the attempts of one request ordered by attempt
// number. Index entries whose job has expired are skipped.
func (r *Redis) ListByRequest(ctx context.Context, requestID string) ([]Job, error) {
	ids, err := r.client.SMembers(ctx, r.requestKey(requestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", requestID, err)
	}

	var out []Job
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
