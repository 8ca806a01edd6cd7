package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	TemplatesFile string
	MetricsPort   int
	LogLevel      string

	RequeueDelay  time.Duration
	ReadyTimeout  time.Duration
	QueueCooldown time.Duration

	GoogleProjectID     string
	CommandSubscription string
	EventTopic          string
	CredentialsFile     string
	EventBuffer         int

	RedisAddr   string
	RedisPrefix string

	AgonesEnabled   bool
	AgonesNamespace string
}

func Load() *Config {
	cfg := &Config{
		TemplatesFile:       strings.TrimSpace(getEnv("BG_TEMPLATES_FILE", "templates.yaml")),
		MetricsPort:         getEnvInt("BG_METRICS_PORT", 8080),
		LogLevel:            strings.TrimSpace(getEnv("BG_LOG_LEVEL", "info")),
		RequeueDelay:        getEnvDuration("BG_REQUEUE_DELAY", 10*time.Second),
		ReadyTimeout:        getEnvDuration("BG_READY_TIMEOUT", 20*time.Second),
		QueueCooldown:       getEnvDuration("BG_QUEUE_COOLDOWN", 60*time.Second),
		CommandSubscription: strings.TrimSpace(getEnv("BG_COMMAND_SUBSCRIPTION", "")),
		EventTopic:          strings.TrimSpace(getEnv("BG_EVENT_TOPIC", "")),
		CredentialsFile:     strings.TrimSpace(firstNonEmpty(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), os.Getenv("BG_GSA_CREDENTIALS"))),
		EventBuffer:         getEnvInt("BG_EVENT_BUFFER", 1024),
		RedisAddr:           strings.TrimSpace(getEnv("BG_REDIS_ADDR", "")),
		RedisPrefix:         strings.TrimSpace(getEnv("BG_REDIS_PREFIX", "bg:status")),
		AgonesEnabled:       getEnvBool("BG_AGONES_ENABLED", false),
		AgonesNamespace:     strings.TrimSpace(getEnv("BG_AGONES_NAMESPACE", "default")),
	}

	cfg.GoogleProjectID = getGoogleProjectID(cfg.CredentialsFile, strings.TrimSpace(getEnv("BG_PUBSUB_PROJECT_ID", "")))
	if cfg.GoogleProjectID == "" {
		log.Warn().Msg("Google project ID not resolved; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or BG_PUBSUB_PROJECT_ID")
	}
	if cfg.CommandSubscription == "" {
		log.Warn().Msg("Pub/Sub command subscription not set; set BG_COMMAND_SUBSCRIPTION")
	}
	if cfg.EventTopic == "" {
		log.Warn().Msg("Pub/Sub event topic not set; set BG_EVENT_TOPIC")
	}
	if cfg.RedisAddr == "" {
		log.Info().Msg("BG_REDIS_ADDR not set; penalty status mirror disabled")
	}
	return cfg
}

func (c *Config) HTTPAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MetricsPort))
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"templatesFile":       c.TemplatesFile,
		"metricsPort":         c.MetricsPort,
		"logLevel":            c.LogLevel,
		"requeueDelay":        c.RequeueDelay.String(),
		"readyTimeout":        c.ReadyTimeout.String(),
		"queueCooldown":       c.QueueCooldown.String(),
		"projectID":           c.GoogleProjectID,
		"commandSubscription": c.CommandSubscription,
		"eventTopic":          c.EventTopic,
		"eventBuffer":         c.EventBuffer,
		"credentialsProvided": c.CredentialsFile != "",
		"redisConfigured":     c.RedisAddr != "",
		"redisPrefix":         c.RedisPrefix,
		"agonesEnabled":       c.AgonesEnabled,
		"agonesNamespace":     c.AgonesNamespace,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		iv, err := strconv.Atoi(v)
		if err == nil {
			return iv
		}
		fmt.Printf("invalid int for %s: %s\n", key, v)
	}
	return def
}

// getEnvDuration accepts Go durations ("45s") or whole seconds ("45").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	fmt.Printf("invalid duration for %s: %s\n", key, v)
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
		fmt.Printf("invalid bool for %s: %s\n", key, v)
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func projectIDFromCredentials(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var creds struct {
		ProjectID string `json:"project_id"`
	}
	// An undecodable file yields an empty id so the next source is tried.
	if err := json.Unmarshal(b, &creds); err != nil {
		log.Debug().Err(err).Str("credsFile", path).Msg("config: credentials file is not JSON")
		return "", nil
	}
	return strings.TrimSpace(creds.ProjectID), nil
}

type projectSource struct {
	name    string
	resolve func() string
}

func credentialsSource(name, path string) projectSource {
	return projectSource{name: name, resolve: func() string {
		if path == "" {
			return ""
		}
		pid, err := projectIDFromCredentials(path)
		if err != nil || pid == "" {
			log.Warn().Str("credsFile", path).Msg("config: project_id not found in credentials file or unreadable")
			return ""
		}
		return pid
	}}
}

// getGoogleProjectID walks the project id sources in precedence order:
// GOOGLE_APPLICATION_CREDENTIALS, BG_PUBSUB_PROJECT_ID, GOOGLE_PROJECT_ID,
// the common gcloud variables, then the BG_GSA_CREDENTIALS file.
func getGoogleProjectID(credsFile string, explicit string) string {
	sources := []projectSource{
		credentialsSource("GOOGLE_APPLICATION_CREDENTIALS", strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))),
		{name: "BG_PUBSUB_PROJECT_ID", resolve: func() string { return explicit }},
		{name: "GOOGLE_PROJECT_ID", resolve: func() string { return os.Getenv("GOOGLE_PROJECT_ID") }},
		{name: "GOOGLE_CLOUD_PROJECT/GCLOUD_PROJECT/GCP_PROJECT", resolve: func() string {
			return firstNonEmpty(os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCLOUD_PROJECT"), os.Getenv("GCP_PROJECT"))
		}},
		credentialsSource("BG_GSA_CREDENTIALS", strings.TrimSpace(credsFile)),
	}
	for _, src := range sources {
		if pid := strings.TrimSpace(src.resolve()); pid != "" {
			log.Info().Str("projectID", pid).Str("source", src.name).Msg("config: resolved Google project")
			return pid
		}
	}
	return ""
}
