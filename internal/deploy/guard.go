package deploy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
)

// inFlightTTL bounds how long a crashed deployment can block a retry
const inFlightTTL = 2 * time.Minute

// Guard serializes concurrent deployments of the same character by the same
// owner. The returned release func must be called once the deployment ends.
type Guard interface {
	Acquire(ctx context.Context, owner, hash string) (release func(), err error)
}

func inFlightKey(owner, hash string) string {
	return fmt.Sprintf("deploy:inflight:%s:%s", owner, hash)
}

func errInFlight() error {
	return apperror.New(apperror.DuplicateDeployment, "A deployment of this character is already in progress")
}

// LocalGuard is an in-process Guard for single-instance deployments
type LocalGuard struct {
	held *cache.Cache
}

// NewLocalGuard creates an in-process guard
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: cache.New(inFlightTTL, 2*inFlightTTL)}
}

func (g *LocalGuard) Acquire(_ context.Context, owner, hash string) (func(), error) {
	key := inFlightKey(owner, hash)
	if err := g.held.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return nil, errInFlight()
	}
	return func() { g.held.Delete(key) }, nil
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares in-flight markers across service instances. Redis
// failures are logged and the deployment proceeds; the registry's unique
// key still rejects the loser of a race.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisGuard connects to redisURL and verifies the connection
func NewRedisGuard(redisURL string) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisGuard{client: client}, nil
}

// NewRedisGuardWithClient wraps an existing client
func NewRedisGuardWithClient(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, owner, hash string) (func(), error) {
	key := inFlightKey(owner, hash)
	token := newToken()

	ok, err := g.client.SetNX(ctx, key, token, inFlightTTL).Result()
	if err != nil {
		log.Printf("⚠️  [GUARD] Redis unavailable, continuing without in-flight lock: %v", err)
		return func() {}, nil
	}
	if !ok {
		return nil, errInFlight()
	}

	return func() {
		// The request context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err(); err != nil {
			log.Printf("⚠️  [GUARD] Failed to release %s: %v", key, err)
		}
	}, nil
}

// Ping checks the Redis connection
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
