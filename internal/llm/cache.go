package llm

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"github.com/raine/appraisal-lots/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// VisionCache persists model answers by request hash.
type VisionCache interface {
	GetVisionCache(key string) (*storage.VisionCacheEntry, error)
	SetVisionCache(key string, entry *storage.VisionCacheEntry) error
}

// CachedClient wraps a Client with a persistent answer cache.
type CachedClient struct {
	inner Client
	store VisionCache
}

// NewCachedClient creates a cached client.
func NewCachedClient(inner Client, store VisionCache) *CachedClient {
	return &CachedClient{inner: inner, store: store}
}

// Name implements Client.
func (c *CachedClient) Name() string {
	return c.inner.Name()
}

// requestKey hashes the model, prompt and image data of a request.
// Every field is length prefixed to prevent boundary collisions.
func requestKey(name string, req *Request) string {
	h, _ := blake2b.New256(nil)
	write := func(b []byte) {
		binary.Write(h, binary.LittleEndian, int64(len(b)))
		h.Write(b)
	}
	write([]byte(name))
	write([]byte(req.Prompt))
	for _, img := range req.Images {
		write([]byte(img.MIMEType))
		write(img.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Generate implements Client. Only answers that parse as a lot response are
// cached, so a malformed answer is retried on the next run.
func (c *CachedClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	key := requestKey(c.inner.Name(), req)

	if c.store != nil {
		cached, err := c.store.GetVisionCache(key)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check vision cache")
		} else if cached != nil {
			log.Debug().Str("hash", key[:16]).Msg("vision cache hit")
			return &Response{
				Text:   cached.Text,
				Model:  cached.Model,
				Cached: true,
			}, nil
		}
	}

	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if _, perr := ParseLots(resp.Text); perr != nil {
			return resp, nil
		}
		entry := &storage.VisionCacheEntry{
			Model:        resp.Model,
			Text:         resp.Text,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
		if err := c.store.SetVisionCache(key, entry); err != nil {
			log.Warn().Err(err).Msg("failed to cache vision result")
		} else {
			log.Debug().Str("hash", key[:16]).Msg("cached vision result")
		}
	}

	return resp, nil
}
