package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string   `mapstructure:"PORT"`
	Env          string   `mapstructure:"ENV"`
	LogLevel     string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL  string   `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer   string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string   `mapstructure:"AUTH_AUDIENCE"`
	JWTSecret    string   `mapstructure:"JWT_SECRET"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	// Clinical safety switches. Defaults are the conservative settings; turning
	// a detection pass off is an explicit operator decision.
	EnableMedicationInteractions bool `mapstructure:"ENABLE_MEDICATION_INTERACTIONS"`
	EnableAllergyConflicts       bool `mapstructure:"ENABLE_ALLERGY_CONFLICTS"`
	EnableConditionCompatibility bool `mapstructure:"ENABLE_CONDITION_COMPATIBILITY"`
	AutoResolveMinorConflicts    bool `mapstructure:"AUTO_RESOLVE_MINOR_CONFLICTS"`
	ClinicalOversightRequired    bool `mapstructure:"CLINICAL_OVERSIGHT_REQUIRED"`
	EmergencyOverrideEnabled     bool `mapstructure:"EMERGENCY_OVERRIDE_ENABLED"`
	ReviewConflictThreshold      int  `mapstructure:"REVIEW_CONFLICT_THRESHOLD"`
	OversightGateEnabled         bool `mapstructure:"OVERSIGHT_GATE_ENABLED"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("ENABLE_MEDICATION_INTERACTIONS", true)
	v.SetDefault("ENABLE_ALLERGY_CONFLICTS", true)
	v.SetDefault("ENABLE_CONDITION_COMPATIBILITY", true)
	v.SetDefault("AUTO_RESOLVE_MINOR_CONFLICTS", false)
	v.SetDefault("CLINICAL_OVERSIGHT_REQUIRED", true)
	v.SetDefault("EMERGENCY_OVERRIDE_ENABLED", false)
	v.SetDefault("REVIEW_CONFLICT_THRESHOLD", 3)
	v.SetDefault("OVERSIGHT_GATE_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")
	v.BindEnv("ENABLE_MEDICATION_INTERACTIONS")
	v.BindEnv("ENABLE_ALLERGY_CONFLICTS")
	v.BindEnv("ENABLE_CONDITION_COMPATIBILITY")
	v.BindEnv("AUTO_RESOLVE_MINOR_CONFLICTS")
	v.BindEnv("CLINICAL_OVERSIGHT_REQUIRED")
	v.BindEnv("EMERGENCY_OVERRIDE_ENABLED")
	v.BindEnv("REVIEW_CONFLICT_THRESHOLD")
	v.BindEnv("OVERSIGHT_GATE_ENABLED")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: ENV=development: running with DevAuthMiddleware, which")
		log.Println("WARNING: grants every request admin access without a token.")
		log.Println("WARNING: Never expose this configuration outside a dev machine.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER or JWT_SECRET.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode real JWT authentication must be configured, either via an external
// issuer (JWKS) or a shared HMAC signing secret.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.JWTSecret == "" {
		return fmt.Errorf(
			"authentication is not configured (ENV=%q): set AUTH_ISSUER for JWKS "+
				"validation or JWT_SECRET for HMAC validation. "+
				"Refusing to start a clinical safety engine without authentication", c.Env)
	}

	if c.ReviewConflictThreshold < 1 {
		return fmt.Errorf("REVIEW_CONFLICT_THRESHOLD must be at least 1, got %d", c.ReviewConflictThreshold)
	}

	if !c.EnableMedicationInteractions && !c.EnableAllergyConflicts && !c.EnableConditionCompatibility {
		log.Println("WARNING: every conflict detection pass is disabled; checks will always come back clean")
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
