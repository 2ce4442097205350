package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

// slowCommandHook warns about commands that take longer than threshold and
// about command errors other than a cache miss.
type slowCommandHook struct {
	logg      *logger.Logger
	threshold time.Duration
	now       func() time.Time
}

func (h slowCommandHook) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h slowCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h slowCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := h.clock()
		err := next(ctx, cmd)
		h.observe(ctx, cmd.Name(), 1, h.clock().Sub(start), err)
		return err
	}
}

func (h slowCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := h.clock()
		err := next(ctx, cmds)
		h.observe(ctx, "pipeline", len(cmds), h.clock().Sub(start), err)
		return err
	}
}

func (h slowCommandHook) observe(ctx context.Context, name string, count int, took time.Duration, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
			"redis_cmd": name,
			"error":     err.Error(),
		}), "redis.command_failed")
		return
	}
	if took < h.threshold {
		return
	}
	h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
		"redis_cmd":   name,
		"redis_cmds":  count,
		"duration_ms": took.Milliseconds(),
	}), "redis.slow_command")
}
