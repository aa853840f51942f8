package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/semmidev/warden/internal/infrastructure/scheduler"
	"github.com/semmidev/warden/internal/usecase"
)

// DefaultMaxBackups applies to targets that leave max_backups unset.
const DefaultMaxBackups = 7

var envNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Targets       []TargetConfig      `mapstructure:"targets" validate:"required,min=1,unique=Name,dive"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type AppConfig struct {
	Name              string        `mapstructure:"name"`
	LogLevel          string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile           string        `mapstructure:"log_file"`
	MetricsAddr       string        `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	StagingPath       string        `mapstructure:"staging_path" validate:"required"`
	LoopInterval      time.Duration `mapstructure:"loop_interval" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	SubprocessTimeout time.Duration `mapstructure:"subprocess_timeout" validate:"gt=0"`
}

type BackupConfig struct {
	Compress         bool     `mapstructure:"compress"`
	DeleteOldBackups bool     `mapstructure:"delete_old_backups"`
	AgeRecipients    []string `mapstructure:"age_recipients"`
	AgeIdentityFile  string   `mapstructure:"age_identity_file"`
}

type ProviderConfig struct {
	Type           string        `mapstructure:"type" validate:"required,oneof=local s3 gcs azure gdrive"`
	Prefix         string        `mapstructure:"prefix"`
	UploadAttempts int           `mapstructure:"upload_attempts" validate:"min=1,max=10"`
	UploadBackoff  time.Duration `mapstructure:"upload_backoff" validate:"gte=0"`

	Local  LocalConfig  `mapstructure:"local"`
	S3     S3Config     `mapstructure:"s3"`
	GCS    GCSConfig    `mapstructure:"gcs"`
	Azure  AzureConfig  `mapstructure:"azure"`
	GDrive GDriveConfig `mapstructure:"gdrive"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Endpoint     string `mapstructure:"endpoint" validate:"omitempty,url"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
}

type GDriveConfig struct {
	FolderID         string `mapstructure:"folder_id"`
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	RefreshToken     string `mapstructure:"refresh_token"`
}

type TargetConfig struct {
	Name             string `mapstructure:"name" validate:"required,max=64"`
	Type             string `mapstructure:"type" validate:"required,oneof=postgresql mysql mariadb mongodb file directory"`
	CronRule         string `mapstructure:"cron_rule" validate:"required"`
	MaxBackups       int    `mapstructure:"max_backups"`
	MinRetentionDays int    `mapstructure:"min_retention_days"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// PostgreSQL specific
	SSLMode string `mapstructure:"ssl_mode"`

	// MongoDB specific
	AuthDatabase string `mapstructure:"auth_database"`

	// File and directory targets
	Path string `mapstructure:"path"`
}

type NotificationsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  WebhookConfig  `mapstructure:"discord"`
	Slack    WebhookConfig  `mapstructure:"slack"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type WebhookConfig struct {
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
}

type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from" validate:"omitempty,email"`
	To       []string `mapstructure:"to" validate:"omitempty,dive,email"`
}

// Load reads the YAML file at path, applies WARDEN_* environment overrides and
// any bound command line flags, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if f := flags.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("app.log_level", f); err != nil {
				return nil, fmt.Errorf("failed to bind flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyTargetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "warden")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.metrics_addr", "")
	v.SetDefault("app.staging_path", "/var/lib/warden/staging")
	v.SetDefault("app.loop_interval", 5*time.Second)
	v.SetDefault("app.shutdown_timeout", 30*time.Minute)
	v.SetDefault("app.subprocess_timeout", 30*time.Minute)

	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.delete_old_backups", true)
	v.SetDefault("backup.age_identity_file", "")

	v.SetDefault("provider.type", "local")
	v.SetDefault("provider.prefix", "")
	v.SetDefault("provider.upload_attempts", 5)
	v.SetDefault("provider.upload_backoff", time.Second)
	v.SetDefault("provider.local.path", "/var/lib/warden/backups")
	v.SetDefault("provider.s3.endpoint", "")
	v.SetDefault("provider.s3.region", "us-east-1")
	v.SetDefault("provider.s3.bucket", "")
	v.SetDefault("provider.s3.access_key", "")
	v.SetDefault("provider.s3.secret_key", "")
	v.SetDefault("provider.s3.use_path_style", false)
	v.SetDefault("provider.gcs.bucket", "")
	v.SetDefault("provider.gcs.credentials_file", "")
	v.SetDefault("provider.azure.connection_string", "")
	v.SetDefault("provider.azure.container", "")
	v.SetDefault("provider.gdrive.folder_id", "")
	v.SetDefault("provider.gdrive.credentials_file", "")
	v.SetDefault("provider.gdrive.client_secret_file", "")
	v.SetDefault("provider.gdrive.refresh_token", "")

	v.SetDefault("notifications.telegram.bot_token", "")
	v.SetDefault("notifications.telegram.chat_id", "")
	v.SetDefault("notifications.discord.webhook_url", "")
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("notifications.smtp.host", "")
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.username", "")
	v.SetDefault("notifications.smtp.password", "")
	v.SetDefault("notifications.smtp.from", "")
}

// applyTargetDefaults fills retention settings left at zero.
func (c *Config) applyTargetDefaults() {
	for i := range c.Targets {
		if c.Targets[i].MaxBackups == 0 {
			c.Targets[i].MaxBackups = DefaultMaxBackups
		}
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%s: failed on '%s' rule", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}

	for i, t := range c.Targets {
		if !envNamePattern.MatchString(t.Name) {
			return fmt.Errorf("targets[%d]: name %q may contain only letters, digits, '_' and '-'", i, t.Name)
		}
		if err := scheduler.ValidateRule(t.CronRule); err != nil {
			return fmt.Errorf("targets[%d] %s: %w", i, t.Name, err)
		}
		if err := t.Retention().Validate(); err != nil {
			return fmt.Errorf("targets[%d] %s: %w", i, t.Name, err)
		}

		switch t.Type {
		case "file", "directory":
			if t.Path == "" {
				return fmt.Errorf("targets[%d] %s: path is required for %s targets", i, t.Name, t.Type)
			}
		default:
			if t.Host == "" {
				return fmt.Errorf("targets[%d] %s: host is required", i, t.Name)
			}
			if t.Database == "" {
				return fmt.Errorf("targets[%d] %s: database is required", i, t.Name)
			}
		}
	}

	return c.Provider.validate()
}

func (p ProviderConfig) validate() error {
	switch p.Type {
	case "local":
		if p.Local.Path == "" {
			return fmt.Errorf("provider.local.path is required")
		}
	case "s3":
		if p.S3.Bucket == "" {
			return fmt.Errorf("provider.s3.bucket is required")
		}
	case "gcs":
		if p.GCS.Bucket == "" {
			return fmt.Errorf("provider.gcs.bucket is required")
		}
	case "azure":
		if p.Azure.ConnectionString == "" || p.Azure.Container == "" {
			return fmt.Errorf("provider.azure.connection_string and provider.azure.container are required")
		}
	case "gdrive":
		if p.GDrive.FolderID == "" {
			return fmt.Errorf("provider.gdrive.folder_id is required")
		}
		if p.GDrive.CredentialsFile == "" && (p.GDrive.ClientSecretFile == "" || p.GDrive.RefreshToken == "") {
			return fmt.Errorf("provider.gdrive needs credentials_file or client_secret_file with refresh_token")
		}
	}
	return nil
}

// Retention returns the pruning policy of the target.
func (t TargetConfig) Retention() usecase.RetentionPolicy {
	return usecase.RetentionPolicy{MaxBackups: t.MaxBackups, MinRetentionDays: t.MinRetentionDays}
}

// Target returns the target named name.
func (c *Config) Target(name string) (TargetConfig, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return TargetConfig{}, false
}

func (c *Config) NotificationsEnabled() bool {
	n := c.Notifications
	return (n.Telegram.BotToken != "" && n.Telegram.ChatID != "") ||
		n.Discord.WebhookURL != "" ||
		n.Slack.WebhookURL != "" ||
		(n.SMTP.Host != "" && len(n.SMTP.To) > 0)
}
