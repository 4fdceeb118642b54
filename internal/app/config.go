package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	BinaryPath   string `validate:"required"`
	URL          string `validate:"required"`
	DwellSeconds int
	Debug        string
	FilterList   string
	PolicyPath   string `validate:"required"`

	WorkspacePath string `validate:"required"`
	ToolsPath     string // hcl toolchain file or directory

	LogFormat       string `validate:"oneof=text json"`
	HealthcheckPort int    `validate:"gte=0,lte=65535"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (%v)", fe.Field(), fe.ActualTag(), fe.Value()))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return &cfg, nil
}

// LogLevel is derived from the debug verbosity.
func (c *Config) LogLevel() string {
	if c.Debug == "debug" {
		return "debug"
	}
	return "info"
}
