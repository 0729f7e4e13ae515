package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration for the relay process.
type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	CORSOrigins []string

	DatabasePath string
	PageSize     int

	DiscordToken     string
	GuildID          string
	SupportChannelID string
	StaffRoleID      string
	WebhookID        string
	WebhookToken     string

	IdentityURL string
	CRMURL      string

	Debug bool
}

// Load reads configuration from environment variables and an optional .env
// file. Missing Discord or identity settings are a hard startup failure.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "supportbridge")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8000)
	v.SetDefault("DATABASE_PATH", "supportbridge.db")
	v.SetDefault("HISTORY_PAGE_SIZE", 25)
	v.SetDefault("DEBUG", false)

	cfg := &Config{
		AppName: v.GetString("APP_NAME"),
		Env:     v.GetString("APP_ENV"),
		Host:    v.GetString("HTTP_HOST"),
		Port:    v.GetInt("HTTP_PORT"),

		DatabasePath: v.GetString("DATABASE_PATH"),
		PageSize:     v.GetInt("HISTORY_PAGE_SIZE"),

		DiscordToken:     v.GetString("DISCORD_TOKEN"),
		GuildID:          v.GetString("DISCORD_GUILD_ID"),
		SupportChannelID: v.GetString("DISCORD_SUPPORT_CHANNEL_ID"),
		StaffRoleID:      v.GetString("DISCORD_STAFF_ROLE_ID"),
		WebhookID:        v.GetString("DISCORD_WEBHOOK_ID"),
		WebhookToken:     v.GetString("DISCORD_WEBHOOK_TOKEN"),

		IdentityURL: v.GetString("IDENTITY_URL"),
		CRMURL:      v.GetString("CRM_URL"),

		Debug: v.GetBool("DEBUG"),
	}

	origins := v.GetString("CORS_ORIGINS")
	if origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	required := []struct{ key, value string }{
		{"DISCORD_TOKEN", cfg.DiscordToken},
		{"DISCORD_GUILD_ID", cfg.GuildID},
		{"DISCORD_SUPPORT_CHANNEL_ID", cfg.SupportChannelID},
		{"DISCORD_STAFF_ROLE_ID", cfg.StaffRoleID},
		{"DISCORD_WEBHOOK_ID", cfg.WebhookID},
		{"DISCORD_WEBHOOK_TOKEN", cfg.WebhookToken},
		{"IDENTITY_URL", cfg.IdentityURL},
	}
	for _, req := range required {
		if req.value == "" {
			return nil, fmt.Errorf("%s is required", req.key)
		}
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
