/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/bus"
	"github.com/friendsincode/huginn/internal/protocol"
)

const redisChannelPrefix = "huginn:broadcast:"

// RedisRelay mirrors broadcast messages over Redis pub/sub.
type RedisRelay struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *bus.Bus
	logger zerolog.Logger
	nodeID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	mu          sync.Mutex
	useFallback bool
	failCount   int
	maxFails    int
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// NewRedisRelay creates a Redis-backed relay. If Redis is unreachable
// at startup the relay stays up in local-only mode rather than failing
// the agent.
func NewRedisRelay(cfg RedisConfig, local *bus.Bus, logger zerolog.Logger) (*RedisRelay, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultRedisConfig().MaxFailures
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rr := &RedisRelay{
		client:   client,
		local:    local,
		logger:   logger.With().Str("component", "redis-relay").Logger(),
		nodeID:   newNodeID(),
		ctx:      ctx,
		cancel:   cancel,
		maxFails: cfg.MaxFailures,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		rr.logger.Warn().Err(err).Msg("redis unreachable, relaying locally only")
		rr.useFallback = true
		return rr, nil
	}

	rr.pubsub = client.PSubscribe(ctx, redisChannelPrefix+"*")
	rr.wg.Add(1)
	go rr.receive()

	rr.logger.Info().Str("addr", cfg.Addr).Str("node_id", rr.nodeID).Msg("redis relay started")
	return rr, nil
}

// Publish delivers locally, then mirrors to Redis unless the breaker is
// open.
func (rr *RedisRelay) Publish(msg protocol.Message) {
	rr.local.Publish(msg)

	rr.mu.Lock()
	degraded := rr.useFallback
	rr.mu.Unlock()
	if degraded {
		return
	}

	data, err := marshalEnvelope(msg, rr.nodeID)
	if err != nil {
		rr.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("marshal relay message")
		return
	}

	ctx, cancel := context.WithTimeout(rr.ctx, 2*time.Second)
	defer cancel()

	if err := rr.client.Publish(ctx, redisChannelPrefix+string(msg.Type), data).Err(); err != nil {
		rr.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("publish to redis")
		rr.handleFailure()
		return
	}

	rr.mu.Lock()
	rr.failCount = 0
	rr.mu.Unlock()
}

// receive republishes sibling-node messages onto the local bus.
func (rr *RedisRelay) receive() {
	defer rr.wg.Done()

	ch := rr.pubsub.Channel()
	for {
		select {
		case <-rr.ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				rr.logger.Warn().Msg("redis subscription closed")
				rr.handleFailure()
				return
			}

			env, err := unmarshalEnvelope([]byte(redisMsg.Payload))
			if err != nil {
				rr.logger.Error().Err(err).Msg("bad relay envelope")
				continue
			}
			if env.NodeID == rr.nodeID {
				continue
			}

			msg, err := protocol.Unmarshal(env.Message)
			if err != nil {
				rr.logger.Error().Err(err).Msg("bad relayed message")
				continue
			}
			rr.local.Publish(msg)
		}
	}
}

// Close stops the receiver and releases the client.
func (rr *RedisRelay) Close() error {
	rr.cancel()
	if rr.pubsub != nil {
		_ = rr.pubsub.Close()
	}
	rr.wg.Wait()
	return rr.client.Close()
}

func (rr *RedisRelay) handleFailure() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.failCount++
	if rr.failCount >= rr.maxFails && !rr.useFallback {
		rr.logger.Warn().Int("fail_count", rr.failCount).Msg("redis failure threshold reached, relaying locally only")
		rr.useFallback = true
	}
}
