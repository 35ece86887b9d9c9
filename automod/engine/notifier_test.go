package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackBody(t *testing.T) {
	assert := assert.New(t)

	body := slackBody(&ActionNotice{
		ChatID:   -100123,
		MemberID: 42,
		Username: "ivan",
		Action:   ActionDeleteAndBan,
		Risk:     0.912,
		Text:     "free crypto giveaway click here",
	})
	assert.True(strings.HasPrefix(body, "⚠️ Automod Ban ⚠️\n"))
	assert.Contains(body, "Chat `-100123` / Member `42` / @ivan\n")
	assert.Contains(body, "Risk: `0.91`\n")
	assert.Contains(body, "```free crypto giveaway click here```")
	assert.NotContains(body, "quota")

	body = slackBody(&ActionNotice{
		ChatID:     -100123,
		MemberID:   42,
		Action:     ActionDeleteAndBan,
		BanSkipped: true,
	})
	assert.Contains(body, "Ban skipped: daily quota reached!")
	assert.NotContains(body, "@")

	body = slackBody(&ActionNotice{
		ChatID:   -100123,
		MemberID: 42,
		Action:   ActionWarnAndDelete,
		Text:     strings.Repeat("я", 500),
	})
	assert.True(strings.HasPrefix(body, "⚠️ Automod Language Warning ⚠️\n"))
	assert.NotContains(body, "Risk:")
	assert.Contains(body, strings.Repeat("я", 280)+"…```")
}

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var got SlackWebhookBody
	reply := "ok"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		io.WriteString(w, reply)
	}))
	defer srv.Close()

	n := SlackNotifier{SlackWebhookURL: srv.URL, Client: srv.Client()}
	an := &ActionNotice{ChatID: -100123, MemberID: 42, Action: ActionWarnAndDelete}
	assert.NoError(n.SendAction(ctx, an))
	assert.Equal(slackBody(an), got.Text)

	reply = "invalid_payload"
	assert.Error(n.SendAction(ctx, an))
}

func TestNotifierFailureIgnored(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, plat, _, risk := engineFixture()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	mock := eng.Notifiers[0].(*MockNotifier)
	eng.Notifiers = []Notifier{&SlackNotifier{SlackWebhookURL: srv.URL}, mock}

	text := "free crypto giveaway click here"
	risk.Scores[text] = 0.95
	v, err := eng.ProcessMessage(ctx, testMessage(1, text))
	assert.NoError(err)
	assert.Equal(ActionDeleteAndBan, v.Action)
	assert.Equal([]string{"delete", "ban"}, plat.Ops())
	assert.Len(mock.Notices, 1)
}
