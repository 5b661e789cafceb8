package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"
)

type Server struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required|uint|min:1"`
}

type Database struct {
	Path string `mapstructure:"path" validate:"required"`
}

// Ledger points at the remote relational collaborator holding the
// game_actions rows. sqlite is used for local development and tests.
type Ledger struct {
	Type string `mapstructure:"type" validate:"required|in:sqlite,postgres"`
	Path string `mapstructure:"path"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
	Name string `mapstructure:"name"`
}

type ObjectStore struct {
	Root            string `mapstructure:"root" validate:"required"`
	PublicBaseURL   string `mapstructure:"publicBaseUrl" validate:"required"`
	MediaBucket     string `mapstructure:"mediaBucket" validate:"required"`
	ThumbnailBucket string `mapstructure:"thumbnailBucket" validate:"required"`
	MediaSizeLimit  int64  `mapstructure:"mediaSizeLimit" validate:"required|min:1"`
	ThumbSizeLimit  int64  `mapstructure:"thumbSizeLimit" validate:"required|min:1"`
}

type Upload struct {
	MaxBlobSize   int64         `mapstructure:"maxBlobSize" validate:"required|min:1"`
	QueueCapacity int           `mapstructure:"queueCapacity" validate:"required|min:1"`
	TaskDelay     time.Duration `mapstructure:"taskDelay"`
}

type Thumbnail struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"required"`
	MaxDimension int           `mapstructure:"maxDimension" validate:"required|min:16"`
	JPEGQuality  int           `mapstructure:"jpegQuality" validate:"required|min:1|max:100"`
}

type Compile struct {
	Width             int           `mapstructure:"width" validate:"required|min:16"`
	Height            int           `mapstructure:"height" validate:"required|min:16"`
	FPS               int           `mapstructure:"fps" validate:"required|min:1"`
	TransitionSeconds float64       `mapstructure:"transitionSeconds"`
	ClipTimeout       time.Duration `mapstructure:"clipTimeout" validate:"required"`
	JobTimeout        time.Duration `mapstructure:"jobTimeout" validate:"required"`
}

type Config struct {
	LogLevel    string      `mapstructure:"logLevel" validate:"required|in:trace,debug,info,warn,error"`
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Ledger      Ledger      `mapstructure:"ledger"`
	ObjectStore ObjectStore `mapstructure:"objectStore"`
	Upload      Upload      `mapstructure:"upload"`
	Thumbnail   Thumbnail   `mapstructure:"thumbnail"`
	Compile     Compile     `mapstructure:"compile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./readysitplay.db")
	v.SetDefault("ledger.type", "sqlite")
	v.SetDefault("ledger.path", "./ledger.db")
	v.SetDefault("ledger.port", 5432)
	v.SetDefault("objectStore.root", "./objects")
	v.SetDefault("objectStore.publicBaseUrl", "http://localhost:8080/objects")
	v.SetDefault("objectStore.mediaBucket", "game-videos")
	v.SetDefault("objectStore.thumbnailBucket", "video-thumbnails")
	v.SetDefault("objectStore.mediaSizeLimit", 104857600)
	v.SetDefault("objectStore.thumbSizeLimit", 5242880)
	v.SetDefault("upload.maxBlobSize", 524288000)
	v.SetDefault("upload.queueCapacity", 64)
	v.SetDefault("upload.taskDelay", 100*time.Millisecond)
	v.SetDefault("thumbnail.timeout", 10*time.Second)
	v.SetDefault("thumbnail.maxDimension", 640)
	v.SetDefault("thumbnail.jpegQuality", 70)
	v.SetDefault("compile.width", 1280)
	v.SetDefault("compile.height", 720)
	v.SetDefault("compile.fps", 30)
	v.SetDefault("compile.transitionSeconds", 0.5)
	v.SetDefault("compile.clipTimeout", 15*time.Second)
	v.SetDefault("compile.jobTimeout", 5*time.Minute)
}

// Load reads the YAML config at path, applies RSP_* environment overrides,
// and validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("logLevel", "RSP_LOG_LEVEL")
	v.BindEnv("server.port", "RSP_PORT")
	v.BindEnv("database.path", "RSP_DB_PATH")
	v.BindEnv("ledger.type", "RSP_LEDGER_TYPE")
	v.BindEnv("ledger.path", "RSP_LEDGER_PATH")
	v.BindEnv("ledger.host", "RSP_LEDGER_HOST")
	v.BindEnv("ledger.pass", "RSP_LEDGER_PASS")
	v.BindEnv("objectStore.root", "RSP_OBJECT_ROOT")

	if path != "" {
		filename := filepath.Base(path)
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := Validate(&conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

// Validate checks a config against its struct tag rules.
func Validate(conf *Config) error {
	val := validate.Struct(conf)
	if !val.Validate() {
		return fmt.Errorf("invalid config: %s", val.Errors.One())
	}
	if conf.Ledger.Type == "postgres" && conf.Ledger.Host == "" {
		return fmt.Errorf("invalid config: ledger.host is required for postgres")
	}
	return nil
}
