package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aadhaar_pulse/internal/anomaly"
	"aadhaar_pulse/internal/config"
	"aadhaar_pulse/internal/indices"
)

const maxListed = 10

// Message represents outbound alert.
type Message struct {
	Text string `json:"text"`
}

// GroupMe posts anomaly summaries to a GroupMe bot.
type GroupMe struct {
	botID       string
	url         string
	minSeverity indices.Level
	client      *http.Client
}

// NewGroupMe builds a notifier from config. It is a no-op without a bot id.
func NewGroupMe(cfg config.Config) *GroupMe {
	return &GroupMe{
		botID:       cfg.GroupMeBotID,
		url:         cfg.GroupMeURL,
		minSeverity: indices.Level(cfg.NotifyMinSeverity),
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a bot id is configured.
func (g *GroupMe) Enabled() bool { return g.botID != "" }

// Filter keeps anomalies at or above the configured severity.
func (g *GroupMe) Filter(found []anomaly.Anomaly) []anomaly.Anomaly {
	min := rank(g.minSeverity)
	var out []anomaly.Anomaly
	for _, a := range found {
		if rank(a.Severity) >= min {
			out = append(out, a)
		}
	}
	return out
}

// NotifyAnomalies sends one message listing the anomalies of month that pass
// the severity filter. It reports whether a message was sent.
func (g *GroupMe) NotifyAnomalies(ctx context.Context, month string, found []anomaly.Anomaly) (bool, error) {
	if !g.Enabled() {
		return false, nil
	}
	selected := g.Filter(found)
	if len(selected) == 0 {
		return false, nil
	}
	return true, g.Send(ctx, Message{Text: FormatAnomalies(month, selected)})
}

// Send posts a message to the bot.
func (g *GroupMe) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{"text": msg.Text, "bot_id": g.botID}
	buf, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("groupme status %d", resp.StatusCode)
	}
	return nil
}

// FormatAnomalies renders the message body.
func FormatAnomalies(month string, found []anomaly.Anomaly) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Aadhaar Pulse %s: %d anomal", month, len(found))
	if len(found) == 1 {
		b.WriteString("y")
	} else {
		b.WriteString("ies")
	}
	for i, a := range found {
		if i == maxListed {
			fmt.Fprintf(&b, "\n+%d more", len(found)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.StateName, a.Explanation)
	}
	return b.String()
}

func rank(l indices.Level) int {
	switch l {
	case indices.LevelHigh:
		return 3
	case indices.LevelMedium:
		return 2
	case indices.LevelLow:
		return 1
	default:
		return 3
	}
}
