package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const audioCachePrefix = "tts:v1:"

// AudioCache хранит синтезированную речь, чтобы одинаковые запросы не ходили к провайдеру.
type AudioCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, audio []byte) error
}

// RedisAudioCache - кэш речи в Redis с TTL.
type RedisAudioCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAudioCache создает кэш поверх клиента Redis.
func NewRedisAudioCache(client *redis.Client, ttl time.Duration) *RedisAudioCache {
	return &RedisAudioCache{client: client, ttl: ttl}
}

func (c *RedisAudioCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, audioCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisAudioCache) Set(ctx context.Context, key string, audio []byte) error {
	return c.client.Set(ctx, audioCachePrefix+key, audio, c.ttl).Err()
}

// AudioCacheKey - хэш текста, голоса, типа истории и эмоции.
func AudioCacheKey(text, voice, storyType, emotion string) string {
	h := sha256.New()
	for _, part := range []string{strings.TrimSpace(text), voice, strings.ToLower(storyType), strings.ToLower(emotion)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
