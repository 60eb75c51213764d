package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every runtime option arlog reads. All values come from
// ARLOG_* environment variables, optionally overlaid by a config file.
type Config struct {
	ArloEmail    string
	ArloPassword string

	PollInterval time.Duration
	DBPath       string
	Headless     bool
	StateDir     string

	NtfyTopic       string
	TelegramToken   string
	TelegramChatIDs []int64

	APIAddr   string
	LogFormat string
}

// ErrMissingCredentials is returned when the Arlo email or password is
// unset. The caller treats this as a fatal startup error.
var ErrMissingCredentials = errors.New("ARLOG_ARLO_EMAIL and ARLOG_ARLO_PASSWORD must be set")

// Load reads configuration from the environment (and cfgFile when given).
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARLOG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("arlo_email", "")
	v.SetDefault("arlo_password", "")
	v.SetDefault("poll_interval", 300)
	v.SetDefault("db_path", "./arlog.db")
	v.SetDefault("headless", true)
	v.SetDefault("browser_state_dir", filepath.Join(home, ".arlog", "browser_state"))
	v.SetDefault("ntfy_topic", "")
	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_chat_ids", []int64(nil))
	v.SetDefault("api_addr", "")
	v.SetDefault("log_format", "json")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		ArloEmail:       v.GetString("arlo_email"),
		ArloPassword:    v.GetString("arlo_password"),
		PollInterval:    time.Duration(v.GetInt("poll_interval")) * time.Second,
		DBPath:          v.GetString("db_path"),
		Headless:        v.GetBool("headless"),
		StateDir:        v.GetString("browser_state_dir"),
		NtfyTopic:       v.GetString("ntfy_topic"),
		TelegramToken:   v.GetString("telegram_token"),
		TelegramChatIDs: parseChatIDs(v),
		APIAddr:         v.GetString("api_addr"),
		LogFormat:       v.GetString("log_format"),
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 300 * time.Second
	}
	return cfg, nil
}

// Validate checks the hard startup preconditions.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ArloEmail) == "" || strings.TrimSpace(c.ArloPassword) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// UsesPostgres reports whether DBPath is a Postgres DSN rather than a
// SQLite file path.
func (c Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DBPath, "postgres://") || strings.HasPrefix(c.DBPath, "postgresql://")
}

// parseChatIDs accepts either a list or a comma-separated string, since
// viper delivers env values as plain strings.
func parseChatIDs(v *viper.Viper) []int64 {
	if ids := v.GetIntSlice("telegram_chat_ids"); len(ids) > 0 {
		out := make([]int64, 0, len(ids))
		for _, id := range ids {
			out = append(out, int64(id))
		}
		return out
	}
	raw := v.GetString("telegram_chat_ids")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
