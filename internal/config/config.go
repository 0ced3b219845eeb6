package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/clinic/carecore/internal/domain/policy"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`

	SlotMinutes             int    `mapstructure:"SLOT_MINUTES"`
	ClinicDayStart          string `mapstructure:"CLINIC_DAY_START"`
	ClinicDayEnd            string `mapstructure:"CLINIC_DAY_END"`
	MinAdvanceDays          int    `mapstructure:"MIN_ADVANCE_DAYS"`
	AdherenceShortWindow    int    `mapstructure:"ADHERENCE_SHORT_WINDOW_DAYS"`
	AdherenceLongWindow     int    `mapstructure:"ADHERENCE_LONG_WINDOW_DAYS"`
	RiskHistoryThreshold    int    `mapstructure:"RISK_HISTORY_THRESHOLD"`
	RiskMedicationThreshold int    `mapstructure:"RISK_MEDICATION_THRESHOLD"`
	TopConditions           int    `mapstructure:"TOP_CONDITIONS"`
	Timezone                string `mapstructure:"TIMEZONE"`

	SeedDemo     bool  `mapstructure:"SEED_DEMO"`
	SeedPatients int   `mapstructure:"SEED_PATIENTS"`
	Seed         int64 `mapstructure:"SEED"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "BODY_LIMIT", "UPLOAD_LIMIT", "REQUEST_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"SLOT_MINUTES", "CLINIC_DAY_START", "CLINIC_DAY_END", "MIN_ADVANCE_DAYS",
	"ADHERENCE_SHORT_WINDOW_DAYS", "ADHERENCE_LONG_WINDOW_DAYS",
	"RISK_HISTORY_THRESHOLD", "RISK_MEDICATION_THRESHOLD", "TOP_CONDITIONS",
	"TIMEZONE", "SEED_DEMO", "SEED_PATIENTS", "SEED",
}

// Load reads .env when present, then the environment. DATABASE_URL is
// optional; without it the store runs in memory only.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	def := policy.Default()
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "25M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SLOT_MINUTES", def.SlotMinutes)
	v.SetDefault("CLINIC_DAY_START", def.DayStart)
	v.SetDefault("CLINIC_DAY_END", def.DayEnd)
	v.SetDefault("MIN_ADVANCE_DAYS", def.MinAdvanceDays)
	v.SetDefault("ADHERENCE_SHORT_WINDOW_DAYS", def.ShortWindowDays)
	v.SetDefault("ADHERENCE_LONG_WINDOW_DAYS", def.LongWindowDays)
	v.SetDefault("RISK_HISTORY_THRESHOLD", def.RiskHistoryThreshold)
	v.SetDefault("RISK_MEDICATION_THRESHOLD", def.RiskMedicationThreshold)
	v.SetDefault("TOP_CONDITIONS", def.TopConditions)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("SEED_DEMO", true)
	v.SetDefault("SEED_PATIENTS", 0)
	v.SetDefault("SEED", 0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Persistent reports whether snapshots are written to Postgres.
func (c *Config) Persistent() bool {
	return c.DatabaseURL != ""
}

// Policy projects the clinical constants into the value the domain services
// consume. Validate has already checked the timezone.
func (c *Config) Policy() policy.Policy {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return policy.Policy{
		SlotMinutes:             c.SlotMinutes,
		DayStart:                c.ClinicDayStart,
		DayEnd:                  c.ClinicDayEnd,
		MinAdvanceDays:          c.MinAdvanceDays,
		ShortWindowDays:         c.AdherenceShortWindow,
		LongWindowDays:          c.AdherenceLongWindow,
		RiskHistoryThreshold:    c.RiskHistoryThreshold,
		RiskMedicationThreshold: c.RiskMedicationThreshold,
		TopConditions:           c.TopConditions,
		Location:                loc,
	}
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a known location: %w", c.Timezone, err)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("clinic policy: %w", err)
	}
	if c.TopConditions <= 0 {
		return fmt.Errorf("TOP_CONDITIONS must be positive, got %d", c.TopConditions)
	}
	if c.SeedPatients < 0 {
		return fmt.Errorf("SEED_PATIENTS must not be negative, got %d", c.SeedPatients)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
