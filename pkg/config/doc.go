// Package config loads environment-based configuration into tagged structs.
//
// Load reads an optional .env file with godotenv and then parses the struct
// with caarlos0/env. Exported variables always win over values from the file.
//
//	type Config struct {
//	    Issuer string        `env:"MFA_TOTP_ISSUER" envDefault:"ISER Auth System"`
//	    Expiry time.Duration `env:"MFA_EMAIL_CODE_EXPIRY" envDefault:"10m"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Tests can pass WithEnvironment to parse from a map without touching the
// process environment.
package config
