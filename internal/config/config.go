// Package config loads this module's JSON configuration file, following
// the shape of ltconfig.LoadConfig: a single nested, json-tagged struct
// read from a path selected by an environment variable.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

const (
	defaultEnv  = "development"
	configDir   = "config"
	envVarName  = "BITVMX_ENV"
)

// BitcoinConfig selects the network and (optional) RPC endpoint a
// binary built on this module talks to. pkg/protocol itself never
// dials a node; this is for cmd/protocolgraph's own bookkeeping.
type BitcoinConfig struct {
	Network  string `json:"network"`
	RPCURL   string `json:"rpc_url,omitempty"`
	RPCUser  string `json:"rpc_user,omitempty"`
	RPCPass  string `json:"rpc_pass,omitempty"`
}

// KeyManagerConfig seeds the reference LocalKeyManager: cmd/protocolgraph
// hex-decodes Seed and passes it to NewLocalKeyManager as the BIP-32
// seed. DerivationPath is loaded but no code in this module reads it.
type KeyManagerConfig struct {
	Seed            string `json:"seed"`
	DerivationPath  string `json:"derivation_path"`
}

// StorageConfig describes a pkg/storage.Backend location. cmd/protocolgraph
// does not read it: the CLI takes --graph-storage-path and
// --storage-passphrase flags instead.
type StorageConfig struct {
	Backend    string `json:"backend"` // "bbolt" today; reserved for future backends
	Path       string `json:"path"`
	Passphrase string `json:"passphrase,omitempty"` // passphrase for pkg/storage.EncryptedBackend
}

// FeesConfig holds fee-estimation settings. No code in this module reads
// it: ComputeMinimumOutputValues takes its fee rate and safety margin as
// arguments.
type FeesConfig struct {
	DefaultFeeRate      float64 `json:"default_fee_rate"`
	DefaultSafetyMargin float64 `json:"default_safety_margin"`
}

// Config is the top-level on-disk shape, loaded from
// config/{BITVMX_ENV}.json.
type Config struct {
	Bitcoin    BitcoinConfig    `json:"bitcoin"`
	KeyManager KeyManagerConfig `json:"key_manager"`
	Storage    StorageConfig    `json:"storage"`
	Fees       FeesConfig       `json:"fees"`
}

// Load reads config/{env}.json, where env is BITVMX_ENV or, if unset,
// "development". Unknown top-level or nested fields are rejected,
// matching config.rs's serde(deny_unknown_fields) — stricter than the
// teacher's own ltconfig.LoadConfig, which accepts them silently.
func Load() (*Config, error) {
	return LoadEnv(env())
}

// LoadEnv reads config/{env}.json explicitly, bypassing BITVMX_ENV.
func LoadEnv(environment string) (*Config, error) {
	path := fmt.Sprintf("%s/%s.json", configDir, environment)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func env() string {
	if e := os.Getenv(envVarName); e != "" {
		return e
	}
	log.Warnf("%s not set, using default environment %q", envVarName, defaultEnv)
	return defaultEnv
}
