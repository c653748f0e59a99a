package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends ntf to all configured webhook targets.
// Errors are logged and counted but do not affect the caller.
func (n *Notifier) deliver(ntf *Notification) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, ntf)
		case "teams":
			err = n.sendTeams(url, ntf)
		case "http":
			err = n.sendHTTP(url, ntf)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			if n.registry != nil {
				n.registry.NotifyFailed()
			}
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"patient", ntf.PatientID,
				"test", ntf.TestCode,
				"err", err,
			)
		} else {
			if n.registry != nil {
				n.registry.NotifySent()
			}
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"patient", ntf.PatientID,
				"test", ntf.TestCode,
			)
		}
	}
}

func (n *Notifier) sendSlack(url string, ntf *Notification) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*[PANIC]* %s", ntf.Message),
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, ntf *Notification) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "FF4F6A",
		"summary":    fmt.Sprintf("Critical lab result: %s", ntf.TestCode),
		"title":      fmt.Sprintf("Critical lab result: %s %s", ntf.PatientID, ntf.TestCode),
		"text":       ntf.Message,
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, ntf *Notification) error {
	body, _ := json.Marshal(map[string]interface{}{"notification": ntf})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
