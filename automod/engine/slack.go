package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendAction(ctx context.Context, an *ActionNotice) error {
	return n.sendSlackMsg(ctx, slackBody(an))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(respBody) != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(an *ActionNotice) string {
	var sb strings.Builder
	switch an.Action {
	case ActionDeleteAndBan:
		sb.WriteString("⚠️ Automod Ban ⚠️\n")
	case ActionWarnAndDelete:
		sb.WriteString("⚠️ Automod Language Warning ⚠️\n")
	default:
		fmt.Fprintf(&sb, "⚠️ Automod Action: %s ⚠️\n", an.Action)
	}
	fmt.Fprintf(&sb, "Chat `%d` / Member `%d`", an.ChatID, an.MemberID)
	if an.Username != "" {
		fmt.Fprintf(&sb, " / @%s", an.Username)
	}
	sb.WriteString("\n")
	if an.Action == ActionDeleteAndBan {
		fmt.Fprintf(&sb, "Risk: `%.2f`\n", an.Risk)
	}
	if an.BanSkipped {
		sb.WriteString("Ban skipped: daily quota reached!\n")
	}
	if an.BanFailed {
		sb.WriteString("Ban failed!\n")
	}
	if an.Text != "" {
		text := an.Text
		if len([]rune(text)) > 280 {
			text = string([]rune(text)[:280]) + "…"
		}
		fmt.Fprintf(&sb, "```%s```\n", text)
	}
	return sb.String()
}
