package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string

	// Shared secret for the identity provider's profile-sync webhook.
	IdentityWebhookSecret string

	// Optional YAML fixture file with exam templates, applied at startup.
	SeedPath string

	CORSOrigins []string
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:              addr,
		DBDriver:              envOr("DB_DRIVER", "sqlite"),
		DBDSN:                 envOr("DB_DSN", ""),
		AuthHMACSecret:        envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		IdentityWebhookSecret: os.Getenv("IDENTITY_WEBHOOK_SECRET"),
		SeedPath:              os.Getenv("SEED_PATH"),
		CORSOrigins:           csvOr("CORS_ORIGINS", "http://localhost:3000"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
