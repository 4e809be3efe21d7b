package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/patricknitsch/grohe-smarthome/internal/adapters/auth"
	"github.com/patricknitsch/grohe-smarthome/internal/adapters/ondus"
	tomlrepo "github.com/patricknitsch/grohe-smarthome/internal/adapters/repo/toml"
	filestore "github.com/patricknitsch/grohe-smarthome/internal/adapters/secrets/file"
	"github.com/patricknitsch/grohe-smarthome/internal/ports"
)

const (
	configDirName  = ".groheondus"
	configName     = "config"
	configType     = "toml"
	envPrefix      = "GROHE"
	requestTimeout = 30 * time.Second

	// Poll interval bounds: anything below the floor hammers the cloud and
	// trips its rate limiting.
	minPollIntervalSeconds     = 30
	defaultPollIntervalSeconds = 300
)

type appConfig struct {
	Username              string
	Password              string
	PollInterval          time.Duration
	EmitRawFields         bool
	CredentialsPath       string
	CredentialsPassphrase string
	StatePath             string
	BaseURL               string
	LoginURL              string
	RefreshURL            string
	Markers               []auth.MarkerRule
	LogLevel              string
}

type app struct {
	cfg       appConfig
	log       zerolog.Logger
	engine    *auth.Engine
	client    *ondus.Client
	store     ports.CredentialStore
	snapshots ports.SnapshotRepository
	clock     ports.Clock
}

func wireApp() (*app, error) {
	cfg, err := loadConfig(viper.New())
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	store := filestore.NewStore(cfg.CredentialsPath, cfg.CredentialsPassphrase)

	httpClient := &http.Client{Timeout: requestTimeout}

	engine := auth.NewEngine(
		auth.Config{
			LoginURL:   cfg.LoginURL,
			RefreshURL: cfg.RefreshURL,
			Markers:    cfg.Markers,
		},
		httpClient,
		ports.SystemClock{},
		log,
		auth.WithRotationHook(func(ctx context.Context, token string) {
			if err := store.Save(ctx, token); err != nil {
				log.Error().Err(err).Msg("persist rotated refresh token")
			}
		}),
	)

	transport := ondus.NewTransport(httpClient, engine, cfg.BaseURL, log)

	snapshots, err := tomlrepo.NewSnapshotRepository(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("wire snapshot repository: %w", err)
	}

	return &app{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		client:    ondus.NewClient(transport),
		store:     store,
		snapshots: snapshots,
		clock:     ports.SystemClock{},
	}, nil
}

func loadConfig(v *viper.Viper) (appConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return appConfig{}, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, configDirName)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll_interval_seconds", defaultPollIntervalSeconds)
	v.SetDefault("emit_raw_fields", false)
	v.SetDefault("credentials_path", filepath.Join(configDir, "credentials"))
	v.SetDefault("state_path", filepath.Join(configDir, "state.toml"))
	v.SetDefault("api_base_url", ondus.DefaultBaseURL)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return appConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}

	baseURL := strings.TrimRight(v.GetString("api_base_url"), "/")
	v.SetDefault("login_url", baseURL+"/oidc/login")
	v.SetDefault("refresh_url", baseURL+"/oidc/refresh")

	intervalSeconds := v.GetInt("poll_interval_seconds")
	if intervalSeconds <= 0 {
		intervalSeconds = defaultPollIntervalSeconds
	}
	if intervalSeconds < minPollIntervalSeconds {
		intervalSeconds = minPollIntervalSeconds
	}

	var markers []auth.MarkerRule
	if err := v.UnmarshalKey("error_markers", &markers); err != nil {
		return appConfig{}, fmt.Errorf("decode error markers: %w", err)
	}
	if len(markers) == 0 {
		markers = auth.DefaultMarkerRules()
	}

	return appConfig{
		Username:              v.GetString("username"),
		Password:              v.GetString("password"),
		PollInterval:          time.Duration(intervalSeconds) * time.Second,
		EmitRawFields:         v.GetBool("emit_raw_fields"),
		CredentialsPath:       v.GetString("credentials_path"),
		CredentialsPassphrase: v.GetString("credentials_passphrase"),
		StatePath:             v.GetString("state_path"),
		BaseURL:               baseURL,
		LoginURL:              v.GetString("login_url"),
		RefreshURL:            v.GetString("refresh_url"),
		Markers:               markers,
		LogLevel:              v.GetString("log_level"),
	}, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", level, err)
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger(), nil
}
