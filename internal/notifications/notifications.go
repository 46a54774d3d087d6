package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var client *http.Client
var baseURL string
var topic string
var initialized bool

// Init enables operator alerts through ntfy. An empty topic leaves them disabled.
func Init(serverURL, ntfyTopic string) {
	if ntfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		initialized = false
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	baseURL = strings.TrimRight(serverURL, "/")
	topic = ntfyTopic
	initialized = true

	log.Info().
		Str("server", baseURL).
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Send posts a notification to the ntfy server.
func Send(title, message string) error {
	if !initialized {
		return fmt.Errorf("notifications not initialized")
	}
	return send(client, baseURL, topic, title, message)
}

func send(client *http.Client, url, topic, title, message string) error {
	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// Alert sends in the background and only logs a failure. It is a no-op when disabled.
func Alert(title, message string) {
	if !initialized {
		return
	}
	c, url, t := client, baseURL, topic
	go func() {
		if err := send(c, url, t, title, message); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("Failed to send alert")
		}
	}()
}
