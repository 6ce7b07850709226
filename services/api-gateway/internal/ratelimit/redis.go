package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisTimeout = 100 * time.Millisecond

// RedisStore is a fixed window limiter shared by every gateway instance.
// Redis failures let the request through.
type RedisStore struct {
	client *redis.Client
	limit  int64
	window time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewRedisClient connects to the configured redis.
func NewRedisClient(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn("Unable to reach redis", zap.Error(err))
	} else {
		log.Info("Connected to redis", zap.String("addr", cfg.Addr))
	}
	return client
}

// NewRedisStore allows burst requests plus rps for every second of the window.
func NewRedisStore(client *redis.Client, cfg config.GatewayConfig, log *zap.Logger) *RedisStore {
	window := cfg.RateLimitTTL
	if window <= 0 {
		window = time.Second
	}
	limit := int64(math.Ceil(cfg.RateLimitRPS * window.Seconds()))
	if b := int64(cfg.RateLimitBurst); b > limit {
		limit = b
	}
	return &RedisStore{client: client, limit: limit, window: window, log: log, now: time.Now}
}

// Allow implements echo's RateLimiterStore.
func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	slot := s.now().UnixNano() / int64(s.window)
	key := "ratelimit:" + identifier + ":" + strconv.FormatInt(slot, 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("Rate limit store unavailable, allowing request",
			zap.String("key", identifier),
			zap.Error(err))
		return true, nil
	}
	return incr.Val() <= s.limit, nil
}

// Ping checks the redis connection for the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
