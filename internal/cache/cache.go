// Package cache memoizes captions so an image that is seen twice, e.g. a
// card from the hand that later shows up on the table, is captioned once per
// ensemble member.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/chriskillpack/dixit/describer"
	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 10 * time.Minute

// Captioner wraps a describer.Captioner with a TTL cache keyed by the
// captioner name and the image digest. Failed and empty captions are not
// cached.
type Captioner struct {
	next  describer.Captioner
	cache *gocache.Cache
}

var _ describer.Captioner = &Captioner{}

// NewCaptioner returns a caching Captioner. A ttl of zero or less keeps
// entries until the process exits.
func NewCaptioner(next describer.Captioner, ttl time.Duration) *Captioner {
	if ttl <= 0 {
		return &Captioner{next: next, cache: gocache.New(gocache.NoExpiration, 0)}
	}
	return &Captioner{next: next, cache: gocache.New(ttl, cleanupInterval)}
}

func (c *Captioner) Name() string { return c.next.Name() }

func (c *Captioner) Caption(ctx context.Context, image []byte) (string, error) {
	key := c.key(image)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	caption, err := c.next.Caption(ctx, image)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(caption) != "" {
		c.cache.SetDefault(key, caption)
	}
	return caption, nil
}

// Len returns the number of cached captions.
func (c *Captioner) Len() int { return c.cache.ItemCount() }

func (c *Captioner) key(image []byte) string {
	sum := sha256.Sum256(image)
	return c.next.Name() + ":" + hex.EncodeToString(sum[:])
}
