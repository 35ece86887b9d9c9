package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/groupguard/groupguard/automod/cachestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScamScore(t *testing.T) {
	assert := assert.New(t)

	score, err := parseScamScore(`{"scam": 0.92}`)
	assert.NoError(err)
	assert.Equal(0.92, score)

	score, err = parseScamScore("```json\n{\n  \"scam\": 0.1\n}\n```")
	assert.NoError(err)
	assert.Equal(0.1, score)

	score, err = parseScamScore(`Sure! {"verdict": "safe"} hope this helps`)
	assert.NoError(err)
	assert.Equal(0.0, score)

	_, err = parseScamScore("   ")
	assert.ErrorIs(err, ErrNoAnswer)

	_, err = parseScamScore("definitely a scam")
	assert.Error(err)

	_, err = parseScamScore(`{"scam": "high"}`)
	assert.Error(err)
}

func TestBuildGeminiRequest(t *testing.T) {
	assert := assert.New(t)

	req := buildGeminiRequest("", nil)
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 1)
	assert.Equal(scamPrompt, req.Contents[0].Parts[0].Text)
	assert.Len(req.SafetySettings, 4)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	req = buildGeminiRequest("win free USDT", png)
	require.Len(t, req.Contents[0].Parts, 2)
	assert.Contains(req.Contents[0].Parts[0].Text, "Message Text: win free USDT")
	require.NotNil(t, req.Contents[0].Parts[1].InlineData)
	assert.Equal("image/png", req.Contents[0].Parts[1].InlineData.MimeType)
}

func TestGeminiClassifierScore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var gotKey, gotPath string
	var gotReq geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"text": "{\"scam\": 0.8}"}], "role": "model"}, "finishReason": "STOP"}]}`)
	}))
	defer srv.Close()

	gc := NewGeminiClassifier("secret", "", 0)
	gc.Client = http.Client{Timeout: 5 * time.Second}
	gc.Host = srv.URL

	score, err := gc.Score(ctx, "crypto giveaway", []byte{0xff, 0xd8, 0xff, 0xe0})
	assert.NoError(err)
	assert.Equal(0.8, score)
	assert.Equal("secret", gotKey)
	assert.Equal("/v1beta/models/"+DefaultGeminiModel+":generateContent", gotPath)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	assert.Equal([]byte{0xff, 0xd8, 0xff, 0xe0}, gotReq.Contents[0].Parts[1].InlineData.Data)
}

func TestGeminiClassifierErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	status := http.StatusInternalServerError
	body := `{}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	defer srv.Close()

	gc := NewGeminiClassifier("secret", "test-model", 0)
	gc.Client = http.Client{Timeout: 5 * time.Second}
	gc.Host = srv.URL

	_, err := gc.Score(ctx, "hello", nil)
	assert.Error(err)

	status = http.StatusOK
	body = `{"promptFeedback": {"blockReason": "OTHER"}}`
	_, err = gc.Score(ctx, "hello", nil)
	assert.ErrorIs(err, ErrNoAnswer)

	body = `{"candidates": []}`
	_, err = gc.Score(ctx, "hello", nil)
	assert.ErrorIs(err, ErrNoAnswer)
}

type countingScorer struct {
	calls int
	score float64
	err   error
}

func (s *countingScorer) Score(ctx context.Context, text string, image []byte) (float64, error) {
	s.calls++
	return s.score, s.err
}

func TestCachedRiskClassifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	inner := &countingScorer{score: 0.9}
	c := NewCachedRiskClassifier(inner, cachestore.NewMemCacheStore(100, time.Hour))

	for i := 0; i < 3; i++ {
		score, err := c.Score(ctx, "free airdrop", []byte("img"))
		assert.NoError(err)
		assert.Equal(0.9, score)
	}
	assert.Equal(1, inner.calls)

	// different image is a different key
	_, err := c.Score(ctx, "free airdrop", nil)
	assert.NoError(err)
	assert.Equal(2, inner.calls)

	// failures are not cached
	inner.err = errors.New("backend down")
	_, err = c.Score(ctx, "other text", nil)
	assert.Error(err)
	_, err = c.Score(ctx, "other text", nil)
	assert.Error(err)
	assert.Equal(4, inner.calls)

	assert.NotEqual(contentHash("ab", []byte("c")), contentHash("a", []byte("bc")))
}

func TestWhatlangClassifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	lc := NewWhatlangClassifier()

	lang, err := lc.Classify(ctx, "Привет всем! Кто знает, где здесь можно купить хороший кофе и недорого поесть?")
	assert.NoError(err)
	assert.Equal("ru", lang)

	lang, err = lc.Classify(ctx, "The quick brown fox jumps over the lazy dog, and then runs back into the forest.")
	assert.NoError(err)
	assert.Equal("en", lang)

	lang, err = lc.Classify(ctx, "  ")
	assert.NoError(err)
	assert.Equal("", lang)

	lang, err = lc.Classify(ctx, "12345 !!!")
	assert.NoError(err)
	assert.Equal("", lang)
}
