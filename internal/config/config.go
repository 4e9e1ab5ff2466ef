// Package config loads the daemon's environment-variable configuration
// surface into a typed Config. It is built on the standard library
// alone: a small hand-rolled loader in an explicit
// flag/env style is the idiomatic choice here (see DESIGN.md).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMonitoringIntervalMS = 60000
	defaultFinalizedBlocksWait  = 3
	defaultSignatureThreshold   = 90.0
	defaultAlertMinIntervalMS   = 21600000
	defaultSignatureRateMinDrop = 10.0
)

// NetworkConfig is the per-network slice of the configuration surface:
// one set of REST/WS endpoints and tracking filters per {MAINNET,TESTNET}.
type NetworkConfig struct {
	Name    string
	RESTURLs []string
	WSURLs   []string

	TrackedValidators        []string
	TrackedFinalityProviders []string
}

// Config is the fully-resolved, typed view of the environment.
type Config struct {
	MongoURI string

	MonitoringEnabled               bool
	FinalityProviderMonitoringEnabled bool
	ValidatorSignatureMonitoringEnabled bool
	BLSSignatureMonitoringEnabled   bool

	MonitoringInterval time.Duration
	FinalizedBlocksWait uint64

	ValidatorSignatureThreshold      float64
	FinalityProviderSignatureThreshold float64
	BLSSignatureThreshold            float64

	AlertMinInterval      time.Duration
	SignatureRateMinDrop  float64

	Networks []NetworkConfig
}

// Load reads the full configuration surface from the process
// environment, applying the documented defaults.
func Load() (Config, error) {
	cfg := Config{
		MongoURI: os.Getenv("MONGODB_URI"),

		MonitoringEnabled:                   boolEnv("MONITORING_ENABLED", true),
		FinalityProviderMonitoringEnabled:   boolEnv("FINALITY_PROVIDER_MONITORING_ENABLED", true),
		ValidatorSignatureMonitoringEnabled: boolEnv("VALIDATOR_SIGNATURE_MONITORING_ENABLED", true),
		BLSSignatureMonitoringEnabled:       boolEnv("BLS_SIGNATURE_MONITORING_ENABLED", true),

		MonitoringInterval:  time.Duration(intEnv("MONITORING_INTERVAL_MS", defaultMonitoringIntervalMS)) * time.Millisecond,
		FinalizedBlocksWait: uint64(intEnv("FINALIZED_BLOCKS_WAIT", defaultFinalizedBlocksWait)),

		ValidatorSignatureThreshold:        floatEnv("VALIDATOR_SIGNATURE_THRESHOLD", defaultSignatureThreshold),
		FinalityProviderSignatureThreshold: floatEnv("FINALITY_PROVIDER_SIGNATURE_THRESHOLD", defaultSignatureThreshold),
		BLSSignatureThreshold:              floatEnv("BLS_SIGNATURE_THRESHOLD", defaultSignatureThreshold),

		AlertMinInterval:     time.Duration(intEnv("ALERT_MIN_INTERVAL", defaultAlertMinIntervalMS)) * time.Millisecond,
		SignatureRateMinDrop: floatEnv("SIGNATURE_RATE_MIN_DROP", defaultSignatureRateMinDrop),
	}

	trackedValidators := splitCSV(os.Getenv("TRACKED_VALIDATORS"))
	trackedProviders := splitCSV(os.Getenv("TRACKED_FINALITY_PROVIDERS"))

	for _, name := range []string{"MAINNET", "TESTNET"} {
		rest := splitCSV(os.Getenv(name + "_RPC_URLS"))
		if len(rest) == 0 {
			continue
		}
		ws := splitCSV(os.Getenv(name + "_WS_URLS"))
		if len(ws) == 0 {
			ws = make([]string, len(rest))
			for i, u := range rest {
				ws[i] = deriveWSURL(u)
			}
		}
		cfg.Networks = append(cfg.Networks, NetworkConfig{
			Name:                      strings.ToLower(name),
			RESTURLs:                  rest,
			WSURLs:                    ws,
			TrackedValidators:         trackedValidators,
			TrackedFinalityProviders:  trackedProviders,
		})
	}

	if len(cfg.Networks) == 0 {
		return Config{}, fmt.Errorf("config: no network configured, set MAINNET_RPC_URLS and/or TESTNET_RPC_URLS")
	}

	return cfg, nil
}

// deriveWSURL swaps a REST endpoint's protocol for its WebSocket
// equivalent when {MAINNET,TESTNET}_WS_URLS is unset.
func deriveWSURL(restURL string) string {
	switch {
	case strings.HasPrefix(restURL, "https://"):
		return "wss://" + strings.TrimPrefix(restURL, "https://")
	case strings.HasPrefix(restURL, "http://"):
		return "ws://" + strings.TrimPrefix(restURL, "http://")
	default:
		return restURL
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolEnv(key string, def bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func intEnv(key string, def int64) int64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
