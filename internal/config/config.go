package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Matching   MatchingConfig   `yaml:"matching"`
	Cooldown   CooldownConfig   `yaml:"cooldown"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Sync       SyncConfig       `yaml:"sync"`
	Gallery    GalleryConfig    `yaml:"gallery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	ONNXLibrary        string  `yaml:"onnx_library"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	WorkerCount        int     `yaml:"worker_count"`
}

type MatchingConfig struct {
	Threshold float64 `yaml:"threshold"`
	Dimension int     `yaml:"dimension"`
}

type CooldownConfig struct {
	Window        time.Duration `yaml:"window"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type AttendanceConfig struct {
	// UTCOffset fixes the zone that defines a calendar day, e.g. "+08:00".
	UTCOffset     string        `yaml:"utc_offset"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`

	// RecordDeadline caps one check-in, retries included. It must end
	// before the server write timeout so the client gets the answer.
	RecordDeadline time.Duration `yaml:"record_deadline"`
}

// Location returns the fixed-offset zone for day computation.
func (a AttendanceConfig) Location() (*time.Location, error) {
	return ParseOffset(a.UTCOffset)
}

// ParseOffset turns "+08:00", "-05:30" or "Z" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	if s == "Z" || s == "+00:00" || s == "-00:00" {
		return time.FixedZone("UTC", 0), nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		return nil, fmt.Errorf("parse utc offset %q: %w", s, err)
	}
	_, offset := t.Zone()
	if offset < -12*3600 || offset > 14*3600 {
		return nil, fmt.Errorf("utc offset %q out of range", s)
	}
	return time.FixedZone("UTC"+s, offset), nil
}

type SyncConfig struct {
	// Manual disables starting the auto-reload monitor at boot.
	Manual         bool          `yaml:"manual"`
	CheckInterval  time.Duration `yaml:"check_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ExtractWorkers int           `yaml:"extract_workers"`
}

type GalleryConfig struct {
	SnapshotPath   string        `yaml:"snapshot_path"`
	SnapshotObject string        `yaml:"snapshot_object"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the core cannot run with.
func (c *Config) Validate() error {
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be within [0, 1], got %v", c.Matching.Threshold)
	}
	if _, err := c.Attendance.Location(); err != nil {
		return fmt.Errorf("attendance.utc_offset: %w", err)
	}
	if c.Matching.Dimension <= 0 {
		return fmt.Errorf("matching.dimension must be positive")
	}
	if c.Attendance.RecordDeadline >= c.Server.WriteTimeout {
		return fmt.Errorf("attendance.record_deadline (%v) must be below server.write_timeout (%v)",
			c.Attendance.RecordDeadline, c.Server.WriteTimeout)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 4
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.5
	}
	if cfg.Matching.Dimension == 0 {
		cfg.Matching.Dimension = 512
	}
	if cfg.Cooldown.Window == 0 {
		cfg.Cooldown.Window = 3 * time.Second
	}
	if cfg.Cooldown.PruneInterval == 0 {
		cfg.Cooldown.PruneInterval = time.Minute
	}
	if cfg.Attendance.UTCOffset == "" {
		cfg.Attendance.UTCOffset = "+08:00"
	}
	if cfg.Attendance.RetryAttempts == 0 {
		cfg.Attendance.RetryAttempts = 3
	}
	if cfg.Attendance.RetryBackoff == 0 {
		cfg.Attendance.RetryBackoff = 2 * time.Second
	}
	if cfg.Attendance.StoreTimeout == 0 {
		cfg.Attendance.StoreTimeout = 10 * time.Second
	}
	if cfg.Attendance.RecordDeadline == 0 {
		cfg.Attendance.RecordDeadline = 20 * time.Second
	}
	if cfg.Sync.CheckInterval == 0 {
		cfg.Sync.CheckInterval = 60 * time.Second
	}
	if cfg.Sync.FetchTimeout == 0 {
		cfg.Sync.FetchTimeout = 30 * time.Second
	}
	if cfg.Sync.ExtractWorkers == 0 {
		cfg.Sync.ExtractWorkers = 4
	}
	if cfg.Gallery.SnapshotPath == "" {
		cfg.Gallery.SnapshotPath = "face_gallery.json"
	}
	if cfg.Gallery.FlushInterval == 0 {
		cfg.Gallery.FlushInterval = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FD_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FD_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("FD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FD_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FD_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FD_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FD_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FD_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FD_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FD_ONNX_LIBRARY"); v != "" {
		cfg.Vision.ONNXLibrary = v
	}
	if v := os.Getenv("FD_VISION_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("FD_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = f
		}
	}
	if v := os.Getenv("FD_COOLDOWN_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cooldown.Window = d
		}
	}
	if v := os.Getenv("FD_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.CheckInterval = d
		}
	}
	if v := os.Getenv("FD_UTC_OFFSET"); v != "" {
		cfg.Attendance.UTCOffset = v
	}
}
