package question

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	publicCacheKeyPrefix = "certprep:questions:public:"
	defaultPublicTTL     = 5 * time.Minute
)

// CachedPublicReader fronts a PublicReader with Redis. Only the public
// projection is ever cached; answer keys always come from the database.
// Redis failures fall through to the underlying reader.
type CachedPublicReader struct {
	next   PublicReader
	client *redis.Client
	ttl    time.Duration
}

// NewCachedPublicReader returns next unchanged when client is nil.
func NewCachedPublicReader(next PublicReader, client *redis.Client, ttl time.Duration) PublicReader {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = defaultPublicTTL
	}
	return &CachedPublicReader{next: next, client: client, ttl: ttl}
}

func (c *CachedPublicReader) ListPublic(ctx context.Context, domain string) ([]Public, error) {
	key := publicCacheKey(domain)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Public
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return cached, nil
		}
		log.Printf("question cache: drop undecodable entry %s", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("question cache: get %s: %v", key, err)
	}

	items, err := c.next.ListPublic(ctx, domain)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(items)
	if err == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			log.Printf("question cache: set %s: %v", key, setErr)
		}
	}
	return items, nil
}

// Invalidate drops the cached pool for domain and the unfiltered pool.
func (c *CachedPublicReader) Invalidate(ctx context.Context, domain string) error {
	keys := []string{publicCacheKey("")}
	if strings.TrimSpace(domain) != "" {
		keys = append(keys, publicCacheKey(domain))
	}
	return c.client.Del(ctx, keys...).Err()
}

func publicCacheKey(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = "_all"
	}
	return publicCacheKeyPrefix + domain
}
