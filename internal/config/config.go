package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host     string   `koanf:"host"`
	Business Business `koanf:"business"`
	Google   Google   `koanf:"google"`
	Stripe   Stripe   `koanf:"stripe"`
	Redis    Redis    `koanf:"redis"`
	Credits  Credits  `koanf:"credits"`
	Booking  Booking  `koanf:"booking"`
	Database Database `koanf:"db"`
}

type Business struct {
	// Timezone is the canonical zone for "now" in time-gated rules.
	Timezone string `koanf:"timezone"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	// SharedCredentialsFile points to a service account JSON used when an instructor has no delegated token.
	SharedCredentialsFile string `koanf:"sharedcredentialsfile"`
	// Impersonate makes the shared credential act as the instructor's calendar id (domain-wide delegation).
	Impersonate  bool          `koanf:"impersonate"`
	AllDayPolicy string        `koanf:"alldaypolicy"`
	CacheTTL     time.Duration `koanf:"cachettl"`
	Timeout      time.Duration `koanf:"timeout"`
}

type Stripe struct {
	SecretKey     string `koanf:"secretkey"`
	WebhookSecret string `koanf:"webhooksecret"`
}

type Redis struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Prefix  string `koanf:"prefix"`
}

type Credits struct {
	RateCents int64 `koanf:"ratecents"`
}

type Booking struct {
	// GranularitySlots is the deployment policy for externally surfaced durations (2 = 30 minutes).
	GranularitySlots   int           `koanf:"granularityslots"`
	CancellationWindow time.Duration `koanf:"cancellationwindow"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
	// MaxConns and MinConns size the pgx pool; zero keeps the pgx defaults.
	MaxConns int32 `koanf:"maxconns"`
	MinConns int32 `koanf:"minconns"`
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:3000",
		Business: Business{
			Timezone: "UTC",
		},
		Google: Google{
			AllDayPolicy: "ignore",
			CacheTTL:     5 * time.Minute,
			Timeout:      5 * time.Second,
		},
		Redis: Redis{
			Enabled: false,
			Addr:    "localhost:6379",
			Prefix:  "tutorhub",
		},
		Credits: Credits{
			RateCents: 100,
		},
		Booking: Booking{
			GranularitySlots:   2,
			CancellationWindow: 24 * time.Hour,
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "tutorhub",
			Pass:     "",
			Name:     "tutorhub",
			Schema:   "tutorhub",
			MaxConns: 25,
			MinConns: 5,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "TUTORHUB_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "TUTORHUB_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
