package crawl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Debug levels understood by the crawl engine.
const (
	DebugNone  = "none"
	DebugDebug = "debug"
)

// Params is the parameter set handed to the crawl engine.
type Params struct {
	BinaryPath   string `validate:"required,file"`
	URL          string `validate:"required,http_url"`
	DwellSeconds int    `validate:"gt=0"`
	OutputDir    string `validate:"required,dir"`
	Debug        string `validate:"oneof=none debug"`
	// FilterList is validated here but consumed by the matched-edge query,
	// not by the crawler.
	FilterList string `validate:"omitempty,file"`
}

// ValidationError reports a parameter set the crawl engine would reject.
type ValidationError struct {
	Diagnostic string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return "invalid crawl parameters: " + e.Diagnostic
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks p against the shape the crawl engine accepts.
func (p Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Diagnostic: err.Error()}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return &ValidationError{Diagnostic: strings.Join(msgs, "; ")}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "file":
		return fmt.Sprintf("%s %q is not an existing file", fe.Field(), fe.Value())
	case "dir":
		return fmt.Sprintf("%s %q is not an existing directory", fe.Field(), fe.Value())
	case "http_url":
		return fmt.Sprintf("%s %q is not an http(s) URL", fe.Field(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

// args renders p as crawl engine command-line arguments.
func (p Params) args() []string {
	return []string{
		"-b", p.BinaryPath,
		"-u", p.URL,
		"-t", fmt.Sprint(p.DwellSeconds),
		"-o", p.OutputDir,
		"--debug", p.Debug,
	}
}
