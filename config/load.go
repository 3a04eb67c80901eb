package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv so tests can inject an environment.
type LookupFunc func(key string) (string, bool)

// Load builds a Config from defaults, an optional TOML file, optional dotenv
// files and finally MOCKUP_* environment variables, then validates it.
// Missing dotenv files are ignored; a missing TOML file is an error.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return cfg, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// Parse decodes TOML text on top of Default without touching the environment.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, Validate(cfg)
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MOCKUP_LISTEN", &cfg.Server.Listen)
	str("MOCKUP_LOG_LEVEL", &cfg.LogLevel)
	str("MOCKUP_LOG_FORMAT", &cfg.LogFormat)
	str("MOCKUP_SERVICE_URL", &cfg.Service.BaseURL)
	str("MOCKUP_EDIT_MODEL", &cfg.Service.EditModel)
	str("MOCKUP_GENERATE_MODEL", &cfg.Service.GenerateModel)
	str("MOCKUP_LOCAL_ROOT", &cfg.Local.RootDir)
	str("MOCKUP_S3_BUCKET", &cfg.S3.Bucket)
	str("MOCKUP_S3_REGION", &cfg.S3.Region)
	str("MOCKUP_S3_ENDPOINT", &cfg.S3.Endpoint)
	str("MOCKUP_S3_ACCESS_KEY_ID", &cfg.S3.AccessKeyID)
	str("MOCKUP_S3_SECRET_ACCESS_KEY", &cfg.S3.SecretAccessKey)
	str("MOCKUP_EXPORT_FORMAT", &cfg.Export.Format)

	// The key is commonly provided under the provider's own name.
	str("GEMINI_API_KEY", &cfg.Service.APIKey)
	str("MOCKUP_SERVICE_API_KEY", &cfg.Service.APIKey)

	if v, ok := lookup("MOCKUP_BACKEND"); ok && v != "" {
		cfg.Backend = Backend(strings.ToLower(v))
	}
	if v, ok := lookup("MOCKUP_STORAGE"); ok && v != "" {
		cfg.Storage = StorageBackend(strings.ToLower(v))
	}
	if v, ok := lookup("MOCKUP_ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	if v, ok := lookup("MOCKUP_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MOCKUP_WORKERS: %w", err)
		}
		cfg.WorkerCount = n
	}
	if v, ok := lookup("MOCKUP_EXPORT_MULTIPLIER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MOCKUP_EXPORT_MULTIPLIER: %w", err)
		}
		cfg.Export.Multiplier = n
	}
	if v, ok := lookup("MOCKUP_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MOCKUP_S3_PATH_STYLE: %w", err)
		}
		cfg.S3.UsePathStyle = b
	}
	return nil
}
