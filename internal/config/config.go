package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	skerrors "streakkeeper/internal/errors"
	"streakkeeper/internal/utils"
)

const (
	AppDir          = ".streakkeeper"
	ConfigFile      = "config.toml"
	StateFile       = "state.json"
	JournalFile     = "journal.db"
	MaintenanceFile = AppDir + "/project-maintenance.md"
	HeartbeatFile   = "streak-heartbeat.md"

	secretPath = "/run/secrets/telegram_bot_token"

	DefaultReminderText = "No commit in this repository today. The streak may be at risk."
)

type Config struct {
	Telegram Telegram `toml:"telegram"`
	Streak   Streak   `toml:"streak"`
	Schedule Schedule `toml:"schedule"`

	// Root is the repository working tree every relative path resolves against.
	Root string `toml:"-"`
}

type Telegram struct {
	BotToken           string `toml:"bot_token"`
	AllowedChatID      string `toml:"allowed_chat_id"`
	AutoBindOnStart    bool   `toml:"auto_bind_on_start"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
	ReminderText       string `toml:"reminder_text"`
	ReminderChecksRepo bool   `toml:"reminder_checks_repo"`
}

type Streak struct {
	HeartbeatFile     string `toml:"heartbeat_file"`
	MaintenanceFile   string `toml:"maintenance_file"`
	Remote            string `toml:"remote"`
	Branch            string `toml:"branch"`
	CommitPrefix      string `toml:"commit_prefix"`
	MaintenancePrefix string `toml:"maintenance_prefix"`
	BusyNote          string `toml:"busy_note"`
	Push              bool   `toml:"push"`
	Timezone          string `toml:"timezone"`
}

type Schedule struct {
	Enabled bool   `toml:"enabled"`
	TickAt  string `toml:"tick_at"` // HH:MM local time
}

func Default() Config {
	return Config{
		Telegram: Telegram{
			AutoBindOnStart:    true,
			PollTimeoutSeconds: 20,
			ReminderText:       DefaultReminderText,
			ReminderChecksRepo: true,
		},
		Streak: Streak{
			HeartbeatFile:     HeartbeatFile,
			MaintenanceFile:   MaintenanceFile,
			Remote:            "origin",
			CommitPrefix:      "chore(streak)",
			MaintenancePrefix: "chore(maintenance)",
			BusyNote:          "Busy mode",
			Push:              true,
		},
		Schedule: Schedule{
			Enabled: true,
			TickAt:  "20:00",
		},
		Root: ".",
	}
}

// Path returns the config file location for a repository root.
func Path(root string) string {
	return filepath.Join(root, AppDir, ConfigFile)
}

// Load reads the config file under root (defaults when absent), then applies
// the docker secret and environment overrides for the bot credentials.
func Load(root string) (Config, error) {
	cfg := Default()
	cfg.Root = root

	path := Path(root)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, skerrors.NewConfigError(path, nil, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, skerrors.NewConfigError(path, nil, err)
	}

	if token := botToken(); token != "" {
		cfg.Telegram.BotToken = token
	}
	if chat := strings.TrimSpace(os.Getenv("TELEGRAM_ALLOWED_CHAT_ID")); chat != "" {
		cfg.Telegram.AllowedChatID = chat
	}
	cfg.Telegram.BotToken = strings.TrimSpace(cfg.Telegram.BotToken)
	cfg.Telegram.AllowedChatID = strings.TrimSpace(cfg.Telegram.AllowedChatID)

	return cfg, cfg.Validate()
}

func botToken() string {
	if data, err := os.ReadFile(secretPath); err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token
		}
	}
	return strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
}

// Validate checks tunables. Credentials are checked separately by RequireBot
// since the CLI commands work without them.
func (c Config) Validate() error {
	if c.Telegram.PollTimeoutSeconds <= 0 || c.Telegram.PollTimeoutSeconds > 300 {
		return skerrors.NewConfigError("telegram.poll_timeout_seconds", c.Telegram.PollTimeoutSeconds, nil)
	}
	if c.Telegram.AllowedChatID != "" {
		if _, err := strconv.ParseInt(c.Telegram.AllowedChatID, 10, 64); err != nil {
			return skerrors.NewConfigError("telegram.allowed_chat_id", c.Telegram.AllowedChatID, err)
		}
	}
	if strings.TrimSpace(c.Streak.HeartbeatFile) == "" {
		return skerrors.NewConfigError("streak.heartbeat_file", nil, nil)
	}
	if strings.TrimSpace(c.Streak.MaintenanceFile) == "" {
		return skerrors.NewConfigError("streak.maintenance_file", nil, nil)
	}
	if _, err := c.Location(); err != nil {
		return skerrors.NewConfigError("streak.timezone", c.Streak.Timezone, err)
	}
	if _, _, err := utils.ParseHM(c.Schedule.TickAt); err != nil {
		return skerrors.NewConfigError("schedule.tick_at", c.Schedule.TickAt, err)
	}
	return nil
}

// RequireBot fails with a ConfigError when the bot cannot start.
func (c Config) RequireBot() error {
	if c.Telegram.BotToken == "" {
		return skerrors.NewConfigError("telegram.bot_token", nil,
			fmt.Errorf("%w: set TELEGRAM_BOT_TOKEN or edit %s", skerrors.ErrConfig, Path(c.Root)))
	}
	return nil
}

// Location returns the timezone used for "today"; empty means the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Streak.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Streak.Timezone)
}

func (c Config) PollTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

func (c Config) StatePath() string {
	return filepath.Join(c.Root, AppDir, StateFile)
}

func (c Config) JournalPath() string {
	return filepath.Join(c.Root, AppDir, JournalFile)
}

func (c Config) HeartbeatPath() string {
	return c.resolve(c.Streak.HeartbeatFile)
}

func (c Config) MaintenancePath() string {
	return c.resolve(c.Streak.MaintenanceFile)
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// MaskedToken is safe to log.
func (c Config) MaskedToken() string {
	t := c.Telegram.BotToken
	if len(t) > 12 {
		return t[:6] + "..." + t[len(t)-4:]
	}
	return "***"
}

// Write stores cfg as TOML at Path(cfg.Root).
func Write(cfg Config) error {
	path := Path(cfg.Root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
