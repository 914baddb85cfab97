// Package config parses configuration for the relay and client binaries.
// Values come from environment variables (DRIFTBYTE_*) with flags taking
// precedence.
package config

import (
	"flag"
	"os"
	"time"
)

// ServerConfig holds configuration for the relay binary.
type ServerConfig struct {
	Addr          string
	LogLevel      string
	Advertise     bool   // announce the relay via mDNS
	AdvertiseName string // mDNS instance name
	AdvertisePort int    // port announced via mDNS; derived from Addr when 0
}

// ClientConfig holds configuration for the client binary.
type ClientConfig struct {
	ServerURL       string
	LogLevel        string
	PreferDiscovery bool // consult the discovery provider before the relay URL
	DialTimeout     time.Duration
	TargetPeer      string // default destination for relayed messages
}

// ParseServerConfig parses relay configuration from flags and environment.
func ParseServerConfig() ServerConfig {
	return parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) ServerConfig {
	cfg := ServerConfig{
		Addr:          ":8080",
		LogLevel:      "info",
		AdvertiseName: "driftbyte-relay",
	}

	if addr := os.Getenv("DRIFTBYTE_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if level := os.Getenv("DRIFTBYTE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "announce the relay on the local network via mDNS")
	fs.StringVar(&cfg.AdvertiseName, "advertise-name", cfg.AdvertiseName, "mDNS instance name")
	fs.IntVar(&cfg.AdvertisePort, "advertise-port", cfg.AdvertisePort, "port to announce (default: derived from addr)")
	fs.Parse(args)

	return cfg
}

// ParseClientConfig parses client configuration from flags and environment.
func ParseClientConfig() ClientConfig {
	return parseClientConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) ClientConfig {
	cfg := ClientConfig{
		ServerURL:   "http://localhost:8080",
		LogLevel:    "info",
		DialTimeout: 10 * time.Second,
	}

	if serverURL := os.Getenv("DRIFTBYTE_SERVER_URL"); serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if level := os.Getenv("DRIFTBYTE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if os.Getenv("DRIFTBYTE_PREFER_DISCOVERY") == "1" {
		cfg.PreferDiscovery = true
	}

	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "relay URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.PreferDiscovery, "prefer-discovery", cfg.PreferDiscovery, "look for a relay on the local network before using -server-url")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "websocket handshake timeout (0 disables)")
	fs.StringVar(&cfg.TargetPeer, "to", cfg.TargetPeer, "peer ID to send messages to")
	fs.Parse(args)

	return cfg
}
