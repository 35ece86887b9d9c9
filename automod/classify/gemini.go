package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/groupguard/groupguard/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

const (
	DefaultGeminiHost  = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel = "gemini-flash-latest"
)

// Returned when the model answered, but with no usable text (eg, blocked by the backend).
var ErrNoAnswer = errors.New("risk classifier returned no answer")

const scamPrompt = `You are a scam detection expert. Analyze the following message (and image if provided) to determine if it is a scam, fraud, or spam.

Return your answer strictly in this JSON format:
{
    "scam": <double between 0.0 and 1.0>
}

Do NOT return any other text, markdown formatting, or explanations. Return ONLY the JSON object.

"scam" indicates the possibility of this message being a scam.
0.0 means definitely safe.
1.0 means definitely a scam.

Consider:
- Crypto giveaways
- Phishing links
- "You won a prize" messages
- Urgent requests for money
- Suspicious investment opportunities`

// Scores scam risk with the Gemini generateContent REST API.
type GeminiClassifier struct {
	Client  http.Client
	Host    string
	Model   string
	APIKey  string
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

func NewGeminiClassifier(apiKey, model string, ratePerSec float64) *GeminiClassifier {
	if model == "" {
		model = DefaultGeminiModel
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &GeminiClassifier{
		Client:  *util.RobustHTTPClient(),
		Host:    DefaultGeminiHost,
		Model:   model,
		APIKey:  apiKey,
		Limiter: rate.NewLimiter(limit, 1),
		Logger:  slog.Default().With("classifier", "gemini"),
	}
}

// schema: https://ai.google.dev/api/generate-content
type geminiRequest struct {
	Contents       []geminiContent       `json:"contents"`
	SafetySettings []geminiSafetySetting `json:"safetySettings"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	// base64 on the wire, which is how encoding/json handles []byte
	Data []byte `json:"data"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// The content being moderated is often abusive, so backend safety filters are turned off.
var geminiSafetyOff = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

func buildGeminiRequest(text string, image []byte) geminiRequest {
	prompt := scamPrompt
	if text != "" {
		prompt = fmt.Sprintf("%s\n\nMessage Text: %s", scamPrompt, text)
	}
	parts := []geminiPart{{Text: prompt}}
	if len(image) > 0 {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: http.DetectContentType(image),
				Data:     image,
			},
		})
	}
	return geminiRequest{
		Contents:       []geminiContent{{Role: "user", Parts: parts}},
		SafetySettings: geminiSafetyOff,
	}
}

func (resp *geminiResponse) Text() string {
	// only the first candidate is used
	if len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Extracts the "scam" value from a model answer. The answer is expected to be a JSON object, possibly wrapped
// in markdown fences or other text; everything from the first "{" to the last "}" is parsed. A missing "scam"
// key is a score of zero.
func parseScamScore(answer string) (float64, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, ErrNoAnswer
	}
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start != -1 && end > start {
		answer = answer[start : end+1]
	}
	var out struct {
		Scam *float64 `json:"scam"`
	}
	if err := json.Unmarshal([]byte(answer), &out); err != nil {
		return 0, fmt.Errorf("parsing risk classifier answer: %w", err)
	}
	if out.Scam == nil {
		return 0, nil
	}
	return *out.Scam, nil
}

func (gc *GeminiClassifier) Score(ctx context.Context, text string, image []byte) (float64, error) {
	if err := gc.Limiter.Wait(ctx); err != nil {
		return 0, err
	}

	body, err := json.Marshal(buildGeminiRequest(text, image))
	if err != nil {
		return 0, err
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", gc.Host, gc.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("x-goog-api-key", gc.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "groupguard/"+versioninfo.Short())

	start := time.Now()
	res, err := gc.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return 0, fmt.Errorf("gemini request failed: %w", err)
	}
	defer res.Body.Close()
	geminiAPIDuration.Observe(duration.Seconds())
	geminiAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != 200 {
		return 0, fmt.Errorf("gemini request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read gemini resp body: %w", err)
	}

	var respObj geminiResponse
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return 0, fmt.Errorf("failed to parse gemini resp JSON: %w", err)
	}
	if respObj.PromptFeedback != nil && respObj.PromptFeedback.BlockReason != "" {
		return 0, fmt.Errorf("%w: blocked (%s)", ErrNoAnswer, respObj.PromptFeedback.BlockReason)
	}

	answer := respObj.Text()
	gc.Logger.Debug("gemini raw answer", "answer", answer, "duration", duration)
	return parseScamScore(answer)
}
