package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultDBPath   = "./dev.db"
	defaultPort     = "8080"
	defaultEnv      = "development"
	defaultPageSize = 25
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env             string
	AdminEmail      string
	AdminPassword   string
	SessionSecret   string
	DBPath          string
	Port            string
	CMSURL          string
	CMSToken        string
	DefaultPageSize int
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Local dev convenience; godotenv never overrides variables already set.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := Config{
		Env:           strings.ToLower(os.Getenv("APP_ENV")),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		DBPath:        os.Getenv("DB_PATH"),
		Port:          os.Getenv("PORT"),
		CMSURL:        strings.TrimRight(os.Getenv("CMS_URL"), "/"),
		CMSToken:      os.Getenv("CMS_TOKEN"),
	}

	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	cfg.DefaultPageSize = defaultPageSize
	if raw := os.Getenv("DEFAULT_PAGE_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Printf("warning: ignoring invalid DEFAULT_PAGE_SIZE %q", raw)
		} else {
			cfg.DefaultPageSize = n
		}
	}

	if cfg.AdminEmail == "" {
		log.Print("warning: ADMIN_EMAIL is not set")
	}
	if cfg.AdminPassword == "" {
		log.Print("warning: ADMIN_PASSWORD is not set")
	}
	if cfg.SessionSecret == "" {
		log.Print("warning: SESSION_SECRET is not set")
	}

	return cfg
}

// IsDev reports whether the app runs in a development environment, where
// demo data is seeded on startup.
func (c Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// UsesCMS reports whether quotations are persisted through the remote content API.
func (c Config) UsesCMS() bool {
	return c.CMSURL != ""
}
