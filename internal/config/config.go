package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Chrome   ChromeConfig   `yaml:"chrome"`
	Compiler CompilerConfig `yaml:"compiler"`
	Editor   EditorConfig   `yaml:"editor"`
	Janitor  JanitorConfig  `yaml:"janitor"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	Host         string `yaml:"host"`
	Mode         string `yaml:"mode"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver is "memory" or "mysql".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Charset  string `yaml:"charset"`
}

type ChromeConfig struct {
	HeadlessMode bool   `yaml:"headless"`
	ExecPath     string `yaml:"exec_path"`
	// SettleTime is how long a freshly loaded page may render before the
	// first snapshot.
	SettleTime   time.Duration `yaml:"settle_time"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type CompilerConfig struct {
	Driver     string        `yaml:"driver"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	PageDelay  time.Duration `yaml:"page_delay"`
	KeyDelay   time.Duration `yaml:"key_delay"`
	MaxPages   int           `yaml:"max_pages"`
}

type EditorConfig struct {
	DraftDebounce time.Duration `yaml:"draft_debounce"`
}

type JanitorConfig struct {
	Schedule   string        `yaml:"schedule"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	DraftTTL   time.Duration `yaml:"draft_ttl"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			Mode:         "debug",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Database: DatabaseConfig{
			Driver:   "memory",
			Host:     "127.0.0.1",
			Port:     "3306",
			Username: "root",
			Password: "root",
			Database: "tinking",
			Charset:  "utf8mb4",
		},
		Chrome: ChromeConfig{
			HeadlessMode: true,
			SettleTime:   2 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Compiler: CompilerConfig{
			Driver:     "puppeteer",
			RetryDelay: 2 * time.Second,
			PageDelay:  4 * time.Second,
			KeyDelay:   100 * time.Millisecond,
			MaxPages:   1000,
		},
		Editor: EditorConfig{
			DraftDebounce: 750 * time.Millisecond,
		},
		Janitor: JanitorConfig{
			Schedule:   "@every 1m",
			SessionTTL: 30 * time.Minute,
			DraftTTL:   7 * 24 * time.Hour,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by TINKING_CONFIG, then environment variables.
func LoadConfig() (*Config, error) {
	config := defaults()

	if path := os.Getenv("TINKING_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	s := &config.Server
	s.Port = getEnv("SERVER_PORT", s.Port)
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.Mode = getEnv("SERVER_MODE", s.Mode)
	s.ReadTimeout = getEnvAsInt("SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvAsInt("SERVER_WRITE_TIMEOUT", s.WriteTimeout)

	d := &config.Database
	d.Driver = getEnv("DB_DRIVER", d.Driver)
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnv("DB_PORT", d.Port)
	d.Username = getEnv("DB_USERNAME", d.Username)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Database = getEnv("DB_NAME", d.Database)
	d.Charset = getEnv("DB_CHARSET", d.Charset)

	c := &config.Chrome
	c.HeadlessMode = getEnvAsBool("CHROME_HEADLESS", c.HeadlessMode)
	c.ExecPath = getEnv("CHROME_PATH", c.ExecPath)
	c.SettleTime = getEnvAsDuration("CHROME_SETTLE_TIME", c.SettleTime)
	c.PollInterval = getEnvAsDuration("CHROME_POLL_INTERVAL", c.PollInterval)

	g := &config.Compiler
	g.Driver = getEnv("COMPILER_DRIVER", g.Driver)
	g.RetryDelay = getEnvAsDuration("COMPILER_RETRY_DELAY", g.RetryDelay)
	g.PageDelay = getEnvAsDuration("COMPILER_PAGE_DELAY", g.PageDelay)
	g.KeyDelay = getEnvAsDuration("COMPILER_KEY_DELAY", g.KeyDelay)
	g.MaxPages = getEnvAsInt("COMPILER_MAX_PAGES", g.MaxPages)

	config.Editor.DraftDebounce = getEnvAsDuration("EDITOR_DRAFT_DEBOUNCE", config.Editor.DraftDebounce)

	j := &config.Janitor
	j.Schedule = getEnv("JANITOR_SCHEDULE", j.Schedule)
	j.SessionTTL = getEnvAsDuration("JANITOR_SESSION_TTL", j.SessionTTL)
	j.DraftTTL = getEnvAsDuration("JANITOR_DRAFT_TTL", j.DraftTTL)

	if d.Driver != "memory" && d.Driver != "mysql" {
		return nil, fmt.Errorf("config: unknown database driver %q", d.Driver)
	}
	return config, nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.Charset,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
