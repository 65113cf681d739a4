// Package cache keeps the merged meeting collection of each domain in redis and provides
// the short-lived locks that keep scheduled syncs from overlapping.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
	"github.com/redis/go-redis/v9"
)

const (
	meetingsKeyPrefix = "meetflow:meetings:"
	lockKeyPrefix     = "meetflow:sync:lock:"
)

// ErrMiss is returned when a domain has no cached collection.
var ErrMiss = errors.New("cache miss")

// Cache stores one JSON document per domain.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. A zero ttl keeps entries until they are overwritten.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Client() *redis.Client { return c.client }

func (c *Cache) SaveMeetings(ctx context.Context, domain string, ms []meeting.Meeting) error {
	data, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, meetingsKeyPrefix+domain, data, c.ttl).Err()
}

func (c *Cache) LoadMeetings(ctx context.Context, domain string) ([]meeting.Meeting, error) {
	val, err := c.client.Get(ctx, meetingsKeyPrefix+domain).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	var ms []meeting.Meeting
	if err := json.Unmarshal(val, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (c *Cache) Invalidate(ctx context.Context, domain string) error {
	return c.client.Del(ctx, meetingsKeyPrefix+domain).Err()
}

// Domains lists every domain with a cached collection.
func (c *Cache) Domains(ctx context.Context) ([]string, error) {
	var out []string
	iter := c.client.Scan(ctx, 0, meetingsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), meetingsKeyPrefix))
	}
	return out, iter.Err()
}

// Lock is a held SETNX lock.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AcquireSyncLock takes the sync lock of a domain. ok is false when another holder has it.
func (c *Cache) AcquireSyncLock(ctx context.Context, domain string, ttl time.Duration) (*Lock, bool, error) {
	key := lockKeyPrefix + domain
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{client: c.client, key: key, token: token}, true, nil
}

// Release frees the lock if it is still held by this holder.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
