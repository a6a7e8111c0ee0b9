package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
)

// RedisPool is the shared-across-workers Pool backend, grounded on the
// original raiko reqpool's redis.Client wrapper. Every record is stored as
// a single JSON-encoded envelope under a record key, status chain
// included; backend ids live under a separate id key. The initial
// connection is retried with an exponential backoff bounded as spec §5 /
// §4.6 specify: initial 10s, max interval 60s, max elapsed 300s. Calls made
// after construction are not wrapped in that backoff: a failed call
// returns its error, and the client is not rebuilt.
type RedisPool struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig configures the pool's connection and record TTL.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type redisEnvelope struct {
	Key     proofrequest.Key           `json:"key"`
	Entity  Entity                     `json:"entity"`
	History proofrequest.StatusRecords `json:"history"`
	ID      string                     `json:"id"`
	HasID   bool                       `json:"has_id"`
}

// NewRedisPool dials Redis with a bounded exponential-backoff retry policy
// and verifies connectivity with a PING, matching the reconnection
// contract of spec §5.
func NewRedisPool(ctx context.Context, cfg RedisConfig) (*RedisPool, error) {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Second
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 300 * time.Second

	operation := func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("Redis pool connection attempt failed, retrying", "err", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("pool: unable to reach redis: %w", err)
	}

	return &RedisPool{client: client, ttl: ttl}, nil
}

func (p *RedisPool) recordKey(key proofrequest.Key) string {
	return "raiko:pool:" + key.String()
}

func (p *RedisPool) load(ctx context.Context, key proofrequest.Key) (*redisEnvelope, error) {
	raw, err := p.client.Get(ctx, p.recordKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("pool: redis get: %w", err)
	}
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("pool: decode record: %w", err)
	}
	return &env, nil
}

func (p *RedisPool) save(ctx context.Context, key proofrequest.Key, env *redisEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pool: encode record: %w", err)
	}
	if err := p.client.Set(ctx, p.recordKey(key), raw, p.ttl).Err(); err != nil {
		return fmt.Errorf("pool: redis set: %w", err)
	}
	return nil
}

func (p *RedisPool) Enqueue(ctx context.Context, key proofrequest.Key, entity Entity, initialStatus proofrequest.TaskStatus) error {
	existing, err := p.load(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return p.save(ctx, key, &redisEnvelope{
		Key:     key,
		Entity:  entity,
		History: proofrequest.StatusRecords{{Status: initialStatus, Timestamp: time.Now()}},
	})
}

func (p *RedisPool) Get(ctx context.Context, key proofrequest.Key) (Record, bool, error) {
	env, err := p.load(ctx, key)
	if err != nil {
		return Record{}, false, err
	}
	if env == nil {
		return Record{}, false, nil
	}
	latest, _ := env.History.Latest()
	return Record{Entity: env.Entity, Status: latest.Status}, true, nil
}

func (p *RedisPool) UpdateStatus(
	ctx context.Context,
	key proofrequest.Key,
	newStatus proofrequest.TaskStatus,
	proofHex string,
) (proofrequest.TaskStatus, error) {
	env, err := p.load(ctx, key)
	if err != nil {
		return proofrequest.ZeroStatus, err
	}
	if env == nil {
		return proofrequest.ZeroStatus, ErrNotFound
	}

	updated, prior, changed := env.History.AppendIfChanged(proofrequest.StatusRecord{
		Status:    newStatus,
		ProofHex:  proofHex,
		Timestamp: time.Now(),
	})
	if !changed {
		return prior, nil
	}
	env.History = updated
	if err := p.save(ctx, key, env); err != nil {
		return prior, err
	}
	return prior, nil
}

func (p *RedisPool) GetStatusHistory(ctx context.Context, key proofrequest.Key) (proofrequest.StatusRecords, error) {
	env, err := p.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, ErrNotFound
	}
	return env.History, nil
}

func (p *RedisPool) Remove(ctx context.Context, key proofrequest.Key) (int, error) {
	n, err := p.client.Del(ctx, p.recordKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("pool: redis del: %w", err)
	}
	return int(n), nil
}

func (p *RedisPool) List(ctx context.Context) (map[proofrequest.Key]Record, error) {
	out := make(map[proofrequest.Key]Record)
	iter := p.client.Scan(ctx, 0, "raiko:pool:*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := p.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var env redisEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		latest, _ := env.History.Latest()
		out[env.Key] = Record{Entity: env.Entity, Status: latest.Status}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("pool: redis scan: %w", err)
	}
	return out, nil
}

func (p *RedisPool) idKey(key proofrequest.Key) string {
	return "raiko:pool:id:" + key.String()
}

func (p *RedisPool) StoreID(ctx context.Context, key proofrequest.Key, id string) error {
	if err := p.client.Set(ctx, p.idKey(key), id, p.ttl).Err(); err != nil {
		return fmt.Errorf("pool: redis set id: %w", err)
	}
	return nil
}

func (p *RedisPool) ReadID(ctx context.Context, key proofrequest.Key) (string, bool, error) {
	id, err := p.client.Get(ctx, p.idKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("pool: redis get id: %w", err)
	}
	return id, true, nil
}

func (p *RedisPool) RemoveID(ctx context.Context, key proofrequest.Key) error {
	if err := p.client.Del(ctx, p.idKey(key)).Err(); err != nil {
		return fmt.Errorf("pool: redis del id: %w", err)
	}
	return nil
}

func (p *RedisPool) Close() error {
	return p.client.Close()
}

var _ Pool = (*RedisPool)(nil)
