package config

import (
	"fmt"
	"os"
	"strconv"
)

// Server holds daemon settings. Values come from HABSIM_* environment
// variables (optionally loaded from a .env file) and may be overridden by flags.
type Server struct {
	GRPCAddr  string
	HTTPAddr  string
	DBPath    string // empty disables the archive
	LogLevel  string
	LogFormat string
	Workers   int // concurrent runs, 0 means unlimited

	CallbackRetries int
	CallbackBackoff string // exponential, linear, constant
	SubmitRate      int    // run submissions per second per client, 0 disables
}

// DefaultServer returns the daemon defaults.
func DefaultServer() Server {
	return Server{
		GRPCAddr:  ":50051",
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   4,

		CallbackRetries: 3,
		CallbackBackoff: "exponential",
	}
}

// ServerFromEnv overlays HABSIM_GRPC_ADDR, HABSIM_HTTP_ADDR, HABSIM_DB,
// HABSIM_LOG_LEVEL, HABSIM_LOG_FORMAT, HABSIM_CALLBACK_BACKOFF and the
// integer settings HABSIM_WORKERS, HABSIM_CALLBACK_RETRIES and
// HABSIM_SUBMIT_RATE on the defaults.
func ServerFromEnv() (Server, error) {
	s := DefaultServer()
	for key, dst := range map[string]*string{
		"HABSIM_GRPC_ADDR":  &s.GRPCAddr,
		"HABSIM_HTTP_ADDR":  &s.HTTPAddr,
		"HABSIM_DB":         &s.DBPath,
		"HABSIM_LOG_LEVEL":  &s.LogLevel,
		"HABSIM_LOG_FORMAT": &s.LogFormat,

		"HABSIM_CALLBACK_BACKOFF": &s.CallbackBackoff,
	} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	for key, dst := range map[string]*int{
		"HABSIM_WORKERS":          &s.Workers,
		"HABSIM_CALLBACK_RETRIES": &s.CallbackRetries,
		"HABSIM_SUBMIT_RATE":      &s.SubmitRate,
	} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return s, fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}
	return s, s.Validate()
}

// Validate checks the server settings.
func (s Server) Validate() error {
	if s.GRPCAddr == "" && s.HTTPAddr == "" {
		return fmt.Errorf("at least one of grpc or http address must be set")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[s.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s.LogLevel)
	}
	if s.LogFormat != "json" && s.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", s.LogFormat)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", s.Workers)
	}
	if s.CallbackRetries < 0 {
		return fmt.Errorf("callback retries cannot be negative, got %d", s.CallbackRetries)
	}
	switch s.CallbackBackoff {
	case "exponential", "linear", "constant":
	default:
		return fmt.Errorf("invalid callback backoff: %s (must be exponential, linear, or constant)", s.CallbackBackoff)
	}
	if s.SubmitRate < 0 {
		return fmt.Errorf("submit rate cannot be negative, got %d", s.SubmitRate)
	}
	return nil
}
