package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Formatter renders command results.
type Formatter interface {
	Format(data any) (string, error)
}

// NewFormatter supports "yaml" (default) and "json".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		return yamlFormatter{}, nil
	case "json":
		return jsonFormatter{}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}

type yamlFormatter struct{}

func (yamlFormatter) Format(data any) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("render yaml: %w", err)
	}
	return string(out), nil
}

type jsonFormatter struct{}

func (jsonFormatter) Format(data any) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render json: %w", err)
	}
	return string(out) + "\n", nil
}
