package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// RunLock guarantees at most one dispatch run per campaign.
type RunLock interface {
	// Acquire takes the campaign's run token. It returns
	// errors.ErrDispatchInProgress when another run holds it.
	Acquire(ctx context.Context, campaignID uuid.UUID) (*Lease, error)
	IsHeld(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// Lease is one held run token.
type Lease struct {
	lost    chan struct{}
	once    sync.Once
	release func()
}

func newLease(release func()) *Lease {
	return &Lease{lost: make(chan struct{}), release: release}
}

// Lost is closed when the token can no longer be proven held. The holder
// must stop work that assumes exclusivity.
func (l *Lease) Lost() <-chan struct{} {
	return l.lost
}

// Release gives the token back. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisRunLock is a RunLock shared by every process talking to the same Redis.
type RedisRunLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisRunLock constructs a Redis backed run lock.
func NewRedisRunLock(client redis.UniversalClient, prefix string, ttl time.Duration, log *logger.Logger) *RedisRunLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if prefix == "" {
		prefix = "dialer:campaign"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisRunLock{client: client, prefix: prefix, ttl: ttl, log: log}
}

// Acquire sets the key if absent and keeps extending it until released.
// The lease is reported lost when the key stops holding our token, or when
// no extension has succeeded for a full ttl.
func (l *RedisRunLock) Acquire(ctx context.Context, campaignID uuid.UUID) (*Lease, error) {
	key := l.key(campaignID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("run lock acquire: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrDispatchInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	lease := newLease(func() {
		close(stop)
		<-done

		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int(); err != nil {
			l.log.Warn("run lock release failed", zap.String("key", key), zap.Error(err))
		}
	})
	go l.keep(key, token, lease.lost, stop, done)
	return lease, nil
}

func (l *RedisRunLock) keep(key, token string, lost chan<- struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	lastExtended := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			res, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				if time.Since(lastExtended) >= l.ttl {
					l.log.Error("run lock lost: extend failing past ttl", zap.String("key", key), zap.Error(err))
					close(lost)
					return
				}
				l.log.Warn("run lock extend failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if res == 0 {
				l.log.Error("run lock lost", zap.String("key", key))
				close(lost)
				return
			}
			lastExtended = time.Now()
		}
	}
}

// IsHeld reports whether any run currently holds the campaign.
func (l *RedisRunLock) IsHeld(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(campaignID)).Result()
	if err != nil {
		return false, fmt.Errorf("run lock exists: %w", err)
	}
	return n > 0, nil
}

func (l *RedisRunLock) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:dispatch", l.prefix, campaignID.String())
}

// LocalRunLock is an in-process RunLock. Its leases are never lost.
type LocalRunLock struct {
	held sync.Map
}

// NewLocalRunLock constructs an in-process run lock.
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

// Acquire implements RunLock.
func (l *LocalRunLock) Acquire(_ context.Context, campaignID uuid.UUID) (*Lease, error) {
	token := uuid.New()
	if _, loaded := l.held.LoadOrStore(campaignID, token); loaded {
		return nil, apperrors.ErrDispatchInProgress
	}
	return newLease(func() { l.held.CompareAndDelete(campaignID, token) }), nil
}

// IsHeld implements RunLock.
func (l *LocalRunLock) IsHeld(_ context.Context, campaignID uuid.UUID) (bool, error) {
	_, ok := l.held.Load(campaignID)
	return ok, nil
}
