/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BlobConfig points the chunk store at an S3 compatible bucket. An empty endpoint keeps chunks in the database
type BlobConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access-key"`
	SecretKey string `json:"secret-key"`
	UseSSL    bool   `json:"use-ssl"`
}

func (b BlobConfig) Enabled() bool {
	return b.Endpoint != ""
}

func (b BlobConfig) Minio() data.MinioConfig {
	return data.MinioConfig{
		Endpoint:  b.Endpoint,
		Bucket:    b.Bucket,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
		UseSSL:    b.UseSSL,
	}
}

// Config is the configuration of a relay
type Config struct {
	RelayId       string   `json:"relay-id"`
	RelayURL      string   `json:"relay-url"`
	Region        string   `json:"region"`
	Location      string   `json:"location"`
	Port          uint16   `json:"port"`
	PeerURLs      []string `json:"peers"`
	DiscoverySalt string   `json:"discovery-salt"`
	DataDir       string   `json:"data-dir"`
	StorageDriver string   `json:"storage-driver"`

	BootstrapAddr  string `json:"bootstrap-addr"`  // gRPC address of the mesh registry, optional
	NameserverAddr string `json:"nameserver-addr"` // gRPC address of the nameserver, optional

	EnableLogging     bool  `json:"enable-logging"`
	LogPretty         bool  `json:"log-pretty"`
	ReadHeaderTimeout int64 `json:"read-header-timeout"` // seconds
	IdleTimeout       int64 `json:"idle-timeout"`        // seconds
	SweepInterval     int64 `json:"sweep-interval"`      // seconds between two CleanupExpired runs

	Blob BlobConfig `json:"blob"`
}

// DatabasePath is where the relay directory lives
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "relay.db")
}

// LogDirectory is where the subsystem log files are written
func (c *Config) LogDirectory() string {
	return filepath.Join(c.DataDir, "logs")
}

// Mode tells whether the relay starts federated
func (c *Config) Mode() node.RelayMode {
	return node.ModeFor(c.PeerURLs)
}

// newViper prepares a viper instance reading the environment variables in env (key => variable)
func newViper(flags *pflag.FlagSet, env map[string]string) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	for key, variable := range env {
		if err := v.BindEnv(key, variable); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// readConfigFile merges the JSON file at explicit, or <folder>/.cfg when explicit is empty.
// A missing default file is not an error
func readConfigFile(v *viper.Viper, explicit, folder string) error {
	path := explicit
	if path == "" {
		path = filepath.Join(folder, ".cfg")
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("Could not read config file %s: %v", path, err)
	}
	return nil
}

// stringList accepts a list from a flag, a config file, or a comma separated environment variable
func stringList(raw any) []string {
	var items []string
	switch value := raw.(type) {
	case string:
		items = strings.Split(value, ",")
	case []string:
		items = value
	case []any:
		for _, item := range value {
			items = append(items, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func blobConfig(v *viper.Viper) BlobConfig {
	return BlobConfig{
		Endpoint:  v.GetString("blob.endpoint"),
		Bucket:    v.GetString("blob.bucket"),
		AccessKey: v.GetString("blob.access-key"),
		SecretKey: v.GetString("blob.secret-key"),
		UseSSL:    v.GetBool("blob.use-ssl"),
	}
}

var blobEnv = map[string]string{
	"blob.endpoint":   "BLOB_ENDPOINT",
	"blob.bucket":     "BLOB_BUCKET",
	"blob.access-key": "BLOB_ACCESS_KEY",
	"blob.secret-key": "BLOB_SECRET_KEY",
	"blob.use-ssl":    "BLOB_USE_SSL",
}

// LoadConfig reads the relay configuration: command line flags first, then environment variables,
// then the config file, then the defaults
func LoadConfig(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flags.Uint16("port", 8080, "Port of the HTTP server (client /ws and peer /federation)")
	flags.String("data-dir", "./data", "Folder holding the relay database, logs and discovery salt")
	flags.StringSlice("peers", nil, "Public URLs of the peer relays, comma separated")
	flags.String("config", "", "Path of a JSON config file, <data-dir>/.cfg by default")
	flags.Bool("enable-logging", true, "Write the subsystem log files")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	env := map[string]string{
		"relay-id":        "RELAY_ID",
		"relay-url":       "RELAY_URL",
		"region":          "RELAY_REGION",
		"location":        "RELAY_LOCATION",
		"port":            "RELAY_PORT",
		"peers":           "PEER_URLS",
		"discovery-salt":  "DISCOVERY_SALT",
		"data-dir":        "DATA_DIR",
		"storage-driver":  "STORAGE_DRIVER",
		"bootstrap-addr":  "BOOTSTRAP_ADDR",
		"nameserver-addr": "NAMESERVER_URL",
		"log-pretty":      "LOG_PRETTY",
	}
	for key, variable := range blobEnv {
		env[key] = variable
	}
	v, err := newViper(flags, env)
	if err != nil {
		return nil, err
	}
	v.SetDefault("storage-driver", data.DriverSQLite)
	v.SetDefault("read-header-timeout", 10)
	v.SetDefault("idle-timeout", 120)
	v.SetDefault("sweep-interval", 60)

	if err := readConfigFile(v, v.GetString("config"), v.GetString("data-dir")); err != nil {
		return nil, err
	}

	cfg := &Config{
		RelayId:           v.GetString("relay-id"),
		RelayURL:          v.GetString("relay-url"),
		Region:            v.GetString("region"),
		Location:          v.GetString("location"),
		Port:              uint16(v.GetUint("port")),
		PeerURLs:          stringList(v.Get("peers")),
		DiscoverySalt:     v.GetString("discovery-salt"),
		DataDir:           v.GetString("data-dir"),
		StorageDriver:     v.GetString("storage-driver"),
		BootstrapAddr:     v.GetString("bootstrap-addr"),
		NameserverAddr:    v.GetString("nameserver-addr"),
		EnableLogging:     v.GetBool("enable-logging"),
		LogPretty:         v.GetBool("log-pretty"),
		ReadHeaderTimeout: v.GetInt64("read-header-timeout"),
		IdleTimeout:       v.GetInt64("idle-timeout"),
		SweepInterval:     v.GetInt64("sweep-interval"),
		Blob:              blobConfig(v),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills the values that can be generated
func (c *Config) Validate() error {
	if err := node.IsPortValid(int(c.Port)); err != nil {
		return err
	}
	for _, peer := range c.PeerURLs {
		if err := node.IsPeerURLValid(peer); err != nil {
			return err
		}
	}
	if c.RelayURL != "" {
		if err := node.IsPeerURLValid(c.RelayURL); err != nil {
			return fmt.Errorf("Invalid relay URL: %v", err)
		}
	}
	switch c.StorageDriver {
	case data.DriverSQLite, data.DriverPureSQLite:
	default:
		return fmt.Errorf("Unknown storage driver %q", c.StorageDriver)
	}
	if c.DataDir == "" {
		return fmt.Errorf("The data folder cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("The sweep interval must be positive")
	}
	if c.RelayId == "" {
		c.RelayId = uuid.NewString()
	}
	return nil
}

// LoadOrCreateSalt returns the discovery salt, generating and storing one under the data folder when none is configured.
// The salt must never change once hashes are stored, so the generated one is kept across restarts
func (c *Config) LoadOrCreateSalt() (string, error) {
	if c.DiscoverySalt != "" {
		return c.DiscoverySalt, nil
	}

	path := filepath.Join(c.DataDir, "discovery.salt")
	stored, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(stored))) > 0 {
		c.DiscoverySalt = strings.TrimSpace(string(stored))
		return c.DiscoverySalt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return "", err
	}
	salt := hex.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(salt), 0600); err != nil {
		return "", err
	}
	c.DiscoverySalt = salt
	return salt, nil
}

//============================================================================//
//  Bootstrap and nameserver                                                  //
//============================================================================//

// RegistryConfig configures the bootstrap registry and the nameserver, which share the same shape
type RegistryConfig struct {
	GRPCPort  uint16 `json:"grpc-port"`
	HTTPPort  uint16 `json:"http-port"`  // nameserver only
	StateFile string `json:"state-file"` // bootstrap only
	LogFile   string `json:"log-file"`
	SecretKey string `json:"secret-key"` // nameserver cookie key
}

// LoadRegistryConfig reads the configuration of the program named name ("bootstrap" or "nameserver")
func LoadRegistryConfig(name string, args []string) (*RegistryConfig, error) {
	grpcPort := uint16(45999)
	if name == "nameserver" {
		grpcPort = 45998
	}

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.Uint16("grpc-port", grpcPort, "Port of the gRPC registry")
	flags.Uint16("http-port", 9999, "Port of the HTTP entry point")
	flags.String("state-file", name+".cfg", "File holding the registry state")
	flags.String("log-file", name+".log", "Log file")
	flags.String("config", "", "Path of a JSON config file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	prefix := strings.ToUpper(name)
	v, err := newViper(flags, map[string]string{
		"grpc-port":  prefix + "_GRPC_PORT",
		"http-port":  prefix + "_HTTP_PORT",
		"state-file": prefix + "_STATE_FILE",
		"log-file":   prefix + "_LOG_FILE",
		"secret-key": prefix + "_SECRET_KEY",
	})
	if err != nil {
		return nil, err
	}
	if explicit := v.GetString("config"); explicit != "" {
		if err := readConfigFile(v, explicit, ""); err != nil {
			return nil, err
		}
	}

	cfg := &RegistryConfig{
		GRPCPort:  uint16(v.GetUint("grpc-port")),
		HTTPPort:  uint16(v.GetUint("http-port")),
		StateFile: v.GetString("state-file"),
		LogFile:   v.GetString("log-file"),
		SecretKey: v.GetString("secret-key"),
	}
	if err := node.IsPortValid(int(cfg.GRPCPort)); err != nil {
		return nil, err
	}
	if err := node.IsPortValid(int(cfg.HTTPPort)); err != nil {
		return nil, err
	}
	return cfg, nil
}

//============================================================================//
//  Headless client                                                           //
//============================================================================//

// ClientConfig configures the headless client
type ClientConfig struct {
	RelayURL      string     `json:"relay-url"`
	DataDir       string     `json:"data-dir"`
	DisplayName   string     `json:"display-name"`
	PhraseFile    string     `json:"phrase-file"` // recovery phrase, created on first run
	StorageDriver string     `json:"storage-driver"`
	LogPretty     bool       `json:"log-pretty"`
	Blob          BlobConfig `json:"blob"`
}

// DatabasePath is where the client database lives
func (c *ClientConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "umbra.db")
}

func LoadClientConfig(args []string) (*ClientConfig, error) {
	flags := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags.String("relay", "ws://localhost:8080/ws", "Client websocket URL of the relay")
	flags.String("data-dir", "./client-data", "Folder holding the client database")
	flags.String("name", "", "Display name used when a new identity is created")
	flags.String("phrase-file", "", "File holding the recovery phrase, <data-dir>/phrase by default")
	flags.String("config", "", "Path of a JSON config file, <data-dir>/.cfg by default")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	env := map[string]string{
		"relay":          "RELAY_URL",
		"data-dir":       "DATA_DIR",
		"storage-driver": "STORAGE_DRIVER",
		"log-pretty":     "LOG_PRETTY",
	}
	for key, variable := range blobEnv {
		env[key] = variable
	}
	v, err := newViper(flags, env)
	if err != nil {
		return nil, err
	}
	v.SetDefault("storage-driver", data.DriverSQLite)
	if err := readConfigFile(v, v.GetString("config"), v.GetString("data-dir")); err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		RelayURL:      v.GetString("relay"),
		DataDir:       v.GetString("data-dir"),
		DisplayName:   v.GetString("name"),
		PhraseFile:    v.GetString("phrase-file"),
		StorageDriver: v.GetString("storage-driver"),
		LogPretty:     v.GetBool("log-pretty"),
		Blob:          blobConfig(v),
	}
	if err := node.IsPeerURLValid(cfg.RelayURL); err != nil {
		return nil, err
	}
	if cfg.PhraseFile == "" {
		cfg.PhraseFile = filepath.Join(cfg.DataDir, "phrase")
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = "Umbra user"
	}
	return cfg, nil
}
