package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// WakeList is the list the API pushes to after committing an outbox row so a
// sleeping worker picks the job up without waiting for the next poll tick.
const WakeList = "auctionhub:jobs:wake"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// this ping function checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

// this closes the client

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Nudge signals that at least one job is ready. Best effort: the worker's
// poll ticker covers a lost nudge.

func (c *Client) Nudge(ctx context.Context) error {
	return c.redisdb.LPush(ctx, WakeList, "1").Err()
}

// WaitForNudge blocks up to timeout for a wake signal. Returns false on
// timeout (no signal), which is not an error.

func (c *Client) WaitForNudge(ctx context.Context, timeout time.Duration) (bool, error) {
	// go-redis extends the read deadline for blocking commands
	_, err := c.redisdb.BRPop(ctx, timeout, WakeList).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

//  this exposes the redis client for producer/worker wiring

func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
