package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# marketdash configuration

[backend]
# Dashboard backend base URL
base_url = "http://localhost:8000"
# Per-request timeout
timeout = "30s"
# Retries when the backend answers with an HTML page while it starts up
warmup_retries = 3
warmup_delay = "2s"
# Client-side request pacing (requests per second, 0 disables)
rate_limit = 10.0
rate_burst = 20

[chat]
# Preferred reply language sent with each chat request
language = "en"
# Number of prior messages sent as history (0 sends the whole thread)
history_limit = 20

[stream]
# Live price source: "websocket", "poll" or "off"
mode = "poll"
# WebSocket endpoint, required in websocket mode
url = ""
poll_interval = "15s"
buffer_size = 256

[storage]
# SQLite file used for the chat session id and thread (defaults to the config dir)
path = ""

[ui]
color_enabled = true
currency = "EGP"
date_format = "02 Jan 2006"
`

const credentialsTemplate = `# marketdash credentials
# WARNING: Keep this file secure! Do not commit to version control.

# Bearer token issued by the dashboard backend after sign-in
token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
