package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"loan-proposal-service/internal/domain/ports"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript pushes the expiry back only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

const minRenewEvery = 10 * time.Millisecond

// Locker is a single-instance Redis mutex (SET NX PX + token release). A held
// lock is renewed every ttl/3 until released, so ttl only bounds how long a
// crashed holder blocks others.
type Locker struct {
	rdb *redis.Client
}

var _ ports.Locker = (*Locker)(nil)

func NewLocker(rdb *redis.Client) *Locker { return &Locker{rdb: rdb} }

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ports.ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, ttl, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("lock release failed; it will expire by ttl")
			}
		})
	}, nil
}

// keepAlive renews the lock until stop is closed, the token is gone, or Redis
// has been unreachable for a whole ttl.
func (l *Locker) keepAlive(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := ttl / 3
	if every < minRenewEvery {
		every = minRenewEvery
	}
	tick := time.NewTicker(every)
	defer tick.Stop()

	lastOK := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := extendScript.Run(ctx, l.rdb, []string{key}, token, ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			if time.Since(lastOK) > ttl {
				log.Warn().Err(err).Str("key", key).Msg("lock renewal failing; giving up")
				return
			}
		case n == 0:
			log.Warn().Str("key", key).Msg("lock lost before release")
			return
		default:
			lastOK = time.Now()
		}
	}
}
