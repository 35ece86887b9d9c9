package classify

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strconv"

	"github.com/groupguard/groupguard/automod/cachestore"

	"github.com/minio/sha256-simd"
)

const riskCacheName = "risk"

type RiskScorer interface {
	Score(ctx context.Context, text string, image []byte) (float64, error)
}

// Caches risk scores by content hash. Spam waves tend to repeat the exact same text and image across many
// chats, so this saves most backend calls during a wave. Failed scorings are not cached.
type CachedRiskClassifier struct {
	Inner  RiskScorer
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

func NewCachedRiskClassifier(inner RiskScorer, cache cachestore.CacheStore) *CachedRiskClassifier {
	return &CachedRiskClassifier{
		Inner:  inner,
		Cache:  cache,
		Logger: slog.Default().With("classifier", "risk-cache"),
	}
}

func contentHash(text string, image []byte) string {
	h := sha256.New()
	h.Write([]byte(text))
	// separator, so that text/image boundaries can't collide
	h.Write([]byte{0})
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedRiskClassifier) Score(ctx context.Context, text string, image []byte) (float64, error) {
	key := contentHash(text, image)

	raw, err := c.Cache.Get(ctx, riskCacheName, key)
	if err != nil {
		c.Logger.Warn("risk cache read failed", "err", err)
	} else if raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			riskCacheCount.WithLabelValues("hit").Inc()
			return score, nil
		}
		c.Logger.Warn("dropping unparsable cached risk score", "value", raw)
	}
	riskCacheCount.WithLabelValues("miss").Inc()

	score, err := c.Inner.Score(ctx, text, image)
	if err != nil {
		return 0, err
	}
	if err := c.Cache.Set(ctx, riskCacheName, key, strconv.FormatFloat(score, 'g', -1, 64)); err != nil {
		c.Logger.Warn("risk cache write failed", "err", err)
	}
	return score, nil
}
