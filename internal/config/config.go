package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/blacklist"
	"github.com/yokitheyo/gobbler/internal/helpers"
)

type Config struct {
	Pool        PoolConfig       `mapstructure:"pool"`
	Collector   CollectorConfig  `mapstructure:"collector"`
	Blacklist   BlacklistConfig  `mapstructure:"blacklist"`
	Assembler   AssemblerConfig  `mapstructure:"assembler"`
	Persistence string           `mapstructure:"persistencedirectory"`
	Network     NetworkConfig    `mapstructure:"network"`
	Program     ProgramConfig    `mapstructure:"program"`
	Output      OutputConfig     `mapstructure:"output"`
	Server      ServerConfig     `mapstructure:"server"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Migrations  MigrationsConfig `mapstructure:"migrations"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Debug       bool             `mapstructure:"debug"`

	compiled *blacklist.Blacklist
}

type PoolConfig struct {
	ImagePoolDirectory string `mapstructure:"imagepooldirectory"`
	NbImages           int    `mapstructure:"nbimages"`
	KeepImages         bool   `mapstructure:"keepimages"`
	SourceMark         string `mapstructure:"sourcemark"`
}

type CollectorConfig struct {
	MaximumImageSize  int64             `mapstructure:"maximumimagesize"`
	AcceptedMimeTypes map[string]string `mapstructure:"acceptedmimetypes"`
	LocalOnly         bool              `mapstructure:"localonly"`
	StartDir          string            `mapstructure:"startdir"`
	Keywords          KeywordsConfig    `mapstructure:"keywords"`
	Sources           []string          `mapstructure:"sources"`
	CooldownSec       int               `mapstructure:"cooldownsec"`
	IntervalMs        int               `mapstructure:"intervalms"`
}

type KeywordsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Keywords string `mapstructure:"keywords"`
}

type BlacklistConfig struct {
	ImageSHA1 []string `mapstructure:"imagesha1"`
	URL       []string `mapstructure:"url"`
}

type AssemblerConfig struct {
	SizeX       int             `mapstructure:"sizex"`
	SizeY       int             `mapstructure:"sizey"`
	Mirror      bool            `mapstructure:"mirror"`
	Invert      bool            `mapstructure:"invert"`
	Emboss      bool            `mapstructure:"emboss"`
	Resuperpose bool            `mapstructure:"resuperpose"`
	Superpose   SuperposeConfig `mapstructure:"superpose"`
	Mosaic      MosaicConfig    `mapstructure:"mosaic"`
}

type SuperposeConfig struct {
	NbImages       int     `mapstructure:"nbimages"`
	RandomRotation bool    `mapstructure:"randomrotation"`
	Variante       int     `mapstructure:"variante"`
	BorderSmooth   int     `mapstructure:"bordersmooth"`
	Scale          float64 `mapstructure:"scale"`
	// MaxAttempts caps pool pulls per session; 0 means unlimited.
	MaxAttempts int `mapstructure:"maxattempts"`
}

type MosaicConfig struct {
	NbX int `mapstructure:"nbx"`
	NbY int `mapstructure:"nby"`
}

type NetworkConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

type HTTPConfig struct {
	UserAgent  string `mapstructure:"useragent"`
	TimeoutSec int    `mapstructure:"timeoutsec"`
}

type ProgramConfig struct {
	EverySec int `mapstructure:"every"`
}

type OutputConfig struct {
	Filename string        `mapstructure:"filename"`
	HTMLPage string        `mapstructure:"htmlpage"`
	Quality  int           `mapstructure:"quality"`
	Storage  StorageConfig `mapstructure:"storage"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	LocalPath string `mapstructure:"local_path"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3UseSSL    bool   `mapstructure:"s3_use_ssl"`
}

type ServerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Addr               string `mapstructure:"addr"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
	ReadTimeoutSec     int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec    int    `mapstructure:"write_timeout_sec"`
}

type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	RequestTopic string   `mapstructure:"request_topic"`
	GroupID      string   `mapstructure:"group_id"`
}

type DatabaseConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	DSN                  string `mapstructure:"dsn"`
	Slaves               string `mapstructure:"slaves"`
	MaxOpenConns         int    `mapstructure:"max_open_conns"`
	MaxIdleConns         int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSec   int    `mapstructure:"conn_max_lifetime_sec"`
	ConnectRetries       int    `mapstructure:"connect_retries"`
	ConnectRetryDelaySec int    `mapstructure:"connect_retry_delay_sec"`
}

type MigrationsConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the configuration used when a key is absent from the
// config file.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			ImagePoolDirectory: "imagepool",
			NbImages:           50,
			SourceMark:         "--- Picture taken from ",
		},
		Collector: CollectorConfig{
			MaximumImageSize: 4000000,
			AcceptedMimeTypes: map[string]string{
				"image/jpeg": ".jpg",
				"image/gif":  ".gif",
				"image/png":  ".png",
				"image/bmp":  ".bmp",
				"image/tiff": ".tiff",
				"image/webp": ".webp",
			},
			StartDir:    "/",
			Keywords:    KeywordsConfig{Keywords: "cats"},
			Sources:     []string{"flickr", "deviantart", "reddit"},
			CooldownSec: 60,
			IntervalMs:  250,
		},
		Blacklist: BlacklistConfig{
			ImageSHA1: []string{
				"142da07c8cfd0aa9bebb0b2f5939ad636bd474e5",
				"d6ee67a52d8fbef935225de1363847d30a86b5de",
				"6a92790b1c2a301c6e7ddef645dca1f53ea97ac2",
			},
			URL: []string{
				"http://www.flickr.com/images/photo_unavailable.gif",
				"http://*.deviantart.net/*/shared/poetry.jpg",
			},
		},
		Assembler: AssemblerConfig{
			SizeX: 1024,
			SizeY: 768,
			Superpose: SuperposeConfig{
				NbImages:       20,
				RandomRotation: true,
				BorderSmooth:   30,
				Scale:          1.0,
			},
			Mosaic: MosaicConfig{NbX: 5, NbY: 5},
		},
		Persistence: ".",
		Network: NetworkConfig{
			HTTP: HTTPConfig{UserAgent: "gobbler/1.0", TimeoutSec: 30},
		},
		Program: ProgramConfig{EverySec: 60},
		Output: OutputConfig{
			Filename: "gobbler.jpg",
			Quality:  85,
			Storage:  StorageConfig{Type: "local", LocalPath: "."},
		},
		Server: ServerConfig{
			Addr:               ":8080",
			ShutdownTimeoutSec: 10,
			ReadTimeoutSec:     15,
			WriteTimeoutSec:    30,
		},
		Database: DatabaseConfig{
			MaxOpenConns:         5,
			MaxIdleConns:         2,
			ConnMaxLifetimeSec:   300,
			ConnectRetries:       15,
			ConnectRetryDelaySec: 3,
		},
		Migrations: MigrationsConfig{Path: "migrations"},
		Logging:    LoggingConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	cfg := config.New()

	configPath := path
	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		} else if _, err := os.Stat("/app/config.yaml"); err == nil {
			configPath = "/app/config.yaml"
		} else {
			return nil, fmt.Errorf("config.yaml not found")
		}
	}

	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = ""
	}

	if err := cfg.Load(configPath, envPath, "APP"); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appConfig := Default()
	if err := cfg.Unmarshal(appConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := appConfig.Finalize(); err != nil {
		return nil, err
	}

	zlog.Logger.Info().
		Str("pool_dir", appConfig.Pool.ImagePoolDirectory).
		Int("pool_nbimages", appConfig.Pool.NbImages).
		Bool("local_only", appConfig.Collector.LocalOnly).
		Int("size_x", appConfig.Assembler.SizeX).
		Int("size_y", appConfig.Assembler.SizeY).
		Msg("Config loaded successfully via wbf")

	return appConfig, nil
}

// Finalize validates the configuration and compiles derived data. The
// configuration must not be mutated afterwards.
func (c *Config) Finalize() error {
	c.normalize()
	if err := validateConfig(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	bl, err := blacklist.New(c.Blacklist.ImageSHA1, c.Blacklist.URL)
	if err != nil {
		return fmt.Errorf("config validation failed: blacklist.url: %w", err)
	}
	c.compiled = bl
	return nil
}

func (c *Config) normalize() {
	mimes := make(map[string]string, len(c.Collector.AcceptedMimeTypes))
	for mime, ext := range c.Collector.AcceptedMimeTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		mimes[strings.ToLower(strings.TrimSpace(mime))] = ext
	}
	c.Collector.AcceptedMimeTypes = mimes
	c.Collector.Sources = helpers.NormalizeNames(c.Collector.Sources)
	c.Pool.ImagePoolDirectory = filepath.Clean(c.Pool.ImagePoolDirectory)
}

// CompiledBlacklist returns the blacklist built by Finalize.
func (c *Config) CompiledBlacklist() *blacklist.Blacklist {
	return c.compiled
}

// PersistencePath joins name onto the persistence directory.
func (c *Config) PersistencePath(name string) string {
	return filepath.Join(c.Persistence, name)
}

func validateConfig(cfg *Config) error {
	// Pool
	if cfg.Pool.ImagePoolDirectory == "" || cfg.Pool.ImagePoolDirectory == "." {
		return fmt.Errorf("pool.imagepooldirectory is required")
	}
	if cfg.Pool.NbImages <= 0 {
		return fmt.Errorf("pool.nbimages must be positive")
	}
	if cfg.Pool.SourceMark == "" {
		return fmt.Errorf("pool.sourcemark is required")
	}

	// Collector
	if cfg.Collector.MaximumImageSize <= 0 {
		return fmt.Errorf("collector.maximumimagesize must be positive")
	}
	if len(cfg.Collector.AcceptedMimeTypes) == 0 {
		return fmt.Errorf("collector.acceptedmimetypes must contain at least one type")
	}
	for mime, ext := range cfg.Collector.AcceptedMimeTypes {
		if !strings.HasPrefix(mime, "image/") {
			return fmt.Errorf("collector.acceptedmimetypes: %q is not an image type", mime)
		}
		if ext == "" {
			return fmt.Errorf("collector.acceptedmimetypes: %q has no extension", mime)
		}
	}
	if cfg.Collector.LocalOnly && cfg.Collector.StartDir == "" {
		return fmt.Errorf("collector.startdir is required when collector.localonly is set")
	}
	if !cfg.Collector.LocalOnly && len(cfg.Collector.Sources) == 0 {
		return fmt.Errorf("collector.sources must contain at least one source")
	}
	if cfg.Collector.Keywords.Enabled && strings.TrimSpace(cfg.Collector.Keywords.Keywords) == "" {
		return fmt.Errorf("collector.keywords.keywords is required when keywords are enabled")
	}
	if cfg.Collector.CooldownSec < 0 {
		return fmt.Errorf("collector.cooldownsec must be non-negative")
	}
	if cfg.Collector.IntervalMs <= 0 {
		return fmt.Errorf("collector.intervalms must be positive")
	}

	// Assembler
	if cfg.Assembler.SizeX < 32 || cfg.Assembler.SizeY < 32 {
		return fmt.Errorf("assembler.sizex and assembler.sizey must be at least 32")
	}
	if cfg.Assembler.Superpose.NbImages <= 0 {
		return fmt.Errorf("assembler.superpose.nbimages must be positive")
	}
	if cfg.Assembler.Superpose.Variante != 0 && cfg.Assembler.Superpose.Variante != 1 {
		return fmt.Errorf("assembler.superpose.variante must be 0 or 1")
	}
	if cfg.Assembler.Superpose.BorderSmooth < 0 {
		return fmt.Errorf("assembler.superpose.bordersmooth must be non-negative")
	}
	if cfg.Assembler.Superpose.Scale <= 0 {
		return fmt.Errorf("assembler.superpose.scale must be positive")
	}
	if cfg.Assembler.Superpose.MaxAttempts < 0 {
		return fmt.Errorf("assembler.superpose.maxattempts must be non-negative")
	}
	if cfg.Assembler.Mosaic.NbX <= 0 || cfg.Assembler.Mosaic.NbY <= 0 {
		return fmt.Errorf("assembler.mosaic.nbx and assembler.mosaic.nby must be positive")
	}
	if cfg.Persistence == "" {
		return fmt.Errorf("persistencedirectory is required")
	}

	// Network
	if cfg.Network.HTTP.UserAgent == "" {
		return fmt.Errorf("network.http.useragent is required")
	}
	if cfg.Network.HTTP.TimeoutSec <= 0 {
		return fmt.Errorf("network.http.timeoutsec must be positive")
	}

	// Program / output
	if cfg.Program.EverySec < 0 {
		return fmt.Errorf("program.every must be non-negative")
	}
	if cfg.Output.Filename == "" {
		return fmt.Errorf("output.filename is required")
	}
	if cfg.Output.Quality <= 0 || cfg.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if cfg.Output.Storage.Type != "local" && cfg.Output.Storage.Type != "s3" {
		return fmt.Errorf("output.storage.type must be 'local' or 's3'")
	}
	if cfg.Output.Storage.Type == "local" && cfg.Output.Storage.LocalPath == "" {
		return fmt.Errorf("output.storage.local_path is required for local storage")
	}
	if cfg.Output.Storage.Type == "s3" {
		if cfg.Output.Storage.S3Endpoint == "" {
			return fmt.Errorf("output.storage.s3_endpoint is required for s3 storage")
		}
		if cfg.Output.Storage.S3Bucket == "" {
			return fmt.Errorf("output.storage.s3_bucket is required for s3 storage")
		}
		if cfg.Output.Storage.S3AccessKey == "" || cfg.Output.Storage.S3SecretKey == "" {
			return fmt.Errorf("output.storage.s3_access_key and output.storage.s3_secret_key are required for s3 storage")
		}
	}

	// Server
	if cfg.Server.Enabled {
		if cfg.Server.Addr == "" {
			return fmt.Errorf("server.addr is required")
		}
		if cfg.Server.ShutdownTimeoutSec <= 0 {
			return fmt.Errorf("server.shutdown_timeout_sec must be positive")
		}
	}

	// Kafka
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers must contain at least one broker")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required")
		}
		if cfg.Kafka.RequestTopic != "" && cfg.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.group_id is required when kafka.request_topic is set")
		}
	}

	// Database
	if cfg.Database.Enabled {
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if cfg.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be positive")
		}
		if cfg.Database.MaxIdleConns < 0 {
			return fmt.Errorf("database.max_idle_conns must be non-negative")
		}
		if cfg.Migrations.Path == "" {
			return fmt.Errorf("migrations.path is required")
		}
	}

	if cfg.Logging.Level == "" {
		return fmt.Errorf("logging.level is required")
	}

	return nil
}
