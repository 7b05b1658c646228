/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/google/uuid"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig([]string{"--data-dir", dir})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected the default port 8080, got %d", cfg.Port)
	}
	if _, err := uuid.Parse(cfg.RelayId); err != nil {
		t.Errorf("Expected a generated UUID relay id, got %q", cfg.RelayId)
	}
	if cfg.Mode() != node.Standalone || len(cfg.PeerURLs) != 0 {
		t.Errorf("Expected a standalone relay, got %v %v", cfg.Mode(), cfg.PeerURLs)
	}
	if cfg.SweepInterval != 60 || cfg.StorageDriver != "sqlite" || !cfg.EnableLogging {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.DatabasePath() != filepath.Join(dir, "relay.db") {
		t.Errorf("Unexpected database path %s", cfg.DatabasePath())
	}
	if cfg.Blob.Enabled() {
		t.Errorf("Blob storage must be off by default")
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("RELAY_ID", "relay-eu-1")
	t.Setenv("RELAY_PORT", "9000")
	t.Setenv("RELAY_REGION", "eu-west")
	t.Setenv("PEER_URLS", "ws://10.0.0.2:9000/ws, wss://relay.example/ws")
	t.Setenv("DISCOVERY_SALT", "pepper")

	cfg, err := LoadConfig([]string{"--data-dir", t.TempDir()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.RelayId != "relay-eu-1" || cfg.Port != 9000 || cfg.Region != "eu-west" || cfg.DiscoverySalt != "pepper" {
		t.Errorf("Environment was not applied: %+v", cfg)
	}
	if len(cfg.PeerURLs) != 2 || cfg.PeerURLs[1] != "wss://relay.example/ws" {
		t.Errorf("Unexpected peers %v", cfg.PeerURLs)
	}
	if cfg.Mode() != node.Federated {
		t.Errorf("A relay with peers is federated")
	}
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("RELAY_PORT", "9000")

	cfg, err := LoadConfig([]string{"--data-dir", t.TempDir(), "--port", "9100", "--peers", "ws://a.example/ws,ws://b.example/ws"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Expected the flag port, got %d", cfg.Port)
	}
	if len(cfg.PeerURLs) != 2 {
		t.Errorf("Expected two peers from the flag, got %v", cfg.PeerURLs)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"region": "eu", "location": "Turin", "peers": ["ws://peer.example/ws"],
		"blob": {"endpoint": "minio:9000", "bucket": "chunks"}}`
	if err := os.WriteFile(filepath.Join(dir, ".cfg"), []byte(content), 0644); err != nil {
		t.Fatalf("Could not write the config file: %v", err)
	}

	cfg, err := LoadConfig([]string{"--data-dir", dir})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Region != "eu" || cfg.Location != "Turin" {
		t.Errorf("Config file was not applied: %+v", cfg)
	}
	if len(cfg.PeerURLs) != 1 || cfg.PeerURLs[0] != "ws://peer.example/ws" {
		t.Errorf("Unexpected peers %v", cfg.PeerURLs)
	}
	if !cfg.Blob.Enabled() || cfg.Blob.Minio().Bucket != "chunks" {
		t.Errorf("Unexpected blob config %+v", cfg.Blob)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig([]string{"--data-dir", dir, "--port", "80"}); err == nil {
		t.Errorf("A port below 1024 must be rejected")
	}
	if _, err := LoadConfig([]string{"--data-dir", dir, "--peers", "http://peer.example"}); err == nil {
		t.Errorf("A peer URL without a websocket scheme must be rejected")
	}
	if _, err := LoadConfig([]string{"--data-dir", dir, "--config", filepath.Join(dir, "missing.json")}); err == nil {
		t.Errorf("An explicit config file that does not exist must be rejected")
	}

	t.Setenv("STORAGE_DRIVER", "postgres")
	if _, err := LoadConfig([]string{"--data-dir", dir}); err == nil {
		t.Errorf("An unknown storage driver must be rejected")
	}
}

func TestDiscoverySaltIsStable(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}

	first, err := cfg.LoadOrCreateSalt()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("Expected 32 random bytes in hex, got %q", first)
	}

	again := &Config{DataDir: cfg.DataDir}
	second, err := again.LoadOrCreateSalt()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("The generated salt must survive a restart")
	}

	configured := &Config{DataDir: cfg.DataDir, DiscoverySalt: "pepper"}
	if salt, _ := configured.LoadOrCreateSalt(); salt != "pepper" {
		t.Errorf("A configured salt wins, got %q", salt)
	}
}

func TestLoadClientConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadClientConfig([]string{"--data-dir", dir, "--relay", "wss://relay.example/ws"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.PhraseFile != filepath.Join(dir, "phrase") || cfg.DatabasePath() != filepath.Join(dir, "umbra.db") {
		t.Errorf("Unexpected paths: %+v", cfg)
	}

	if _, err := LoadClientConfig([]string{"--data-dir", dir, "--relay", "https://relay.example"}); err == nil {
		t.Errorf("The relay URL must be a websocket URL")
	}
}

func TestLoadRegistryConfig(t *testing.T) {
	bootstrap, err := LoadRegistryConfig("bootstrap", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	nameserver, err := LoadRegistryConfig("nameserver", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if bootstrap.GRPCPort == nameserver.GRPCPort {
		t.Errorf("The registries must not share a default gRPC port")
	}
	if bootstrap.StateFile != "bootstrap.cfg" {
		t.Errorf("Unexpected state file %s", bootstrap.StateFile)
	}

	t.Setenv("NAMESERVER_HTTP_PORT", "8081")
	t.Setenv("NAMESERVER_SECRET_KEY", "cookie-secret")
	nameserver, err = LoadRegistryConfig("nameserver", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if nameserver.HTTPPort != 8081 || nameserver.SecretKey != "cookie-secret" {
		t.Errorf("Environment not applied: %+v", nameserver)
	}

	if _, err := LoadRegistryConfig("bootstrap", []string{"--grpc-port", "80"}); err == nil {
		t.Errorf("Expected a privileged port to be rejected")
	}
}
