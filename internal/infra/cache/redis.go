package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 是共享的缓存后端：多台机器复用同一次抓取。
// 键格式：<Prefix><provider>:<name>。
type Redis struct {
	Client   *redis.Client
	Prefix   string
	TTL      time.Duration // 0 表示不过期
	ReadOnly bool
}

const defaultRedisPrefix = "marcatop:"

// NewRedis 解析 redis:// 或 rediss:// URL 并建立客户端（不主动连接）。
func NewRedis(url string, ttl time.Duration, readOnly bool) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("解析 redis_url 失败：%w", err)
	}
	return &Redis{Client: redis.NewClient(opts), Prefix: defaultRedisPrefix, TTL: ttl, ReadOnly: readOnly}, nil
}

func (r *Redis) key(provider, name string) (string, error) {
	p, n, err := cleanKey(provider, name)
	if err != nil {
		return "", err
	}
	return r.Prefix + p + ":" + n, nil
}

func (r *Redis) Describe(provider, name string) string {
	k, err := r.key(provider, name)
	if err != nil {
		return ""
	}
	return "redis:" + k
}

func (r *Redis) Read(ctx context.Context, provider, name string) ([]byte, bool, error) {
	k, err := r.key(provider, name)
	if err != nil {
		return nil, false, err
	}
	b, err := r.Client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Write(ctx context.Context, provider, name string, b []byte) error {
	if r.ReadOnly {
		return ErrReadOnly
	}
	k, err := r.key(provider, name)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, k, b, r.TTL).Err()
}

// Close 关闭底层连接池。
func (r *Redis) Close() error { return r.Client.Close() }
