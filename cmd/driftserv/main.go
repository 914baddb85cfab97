// Command driftserv runs the signaling relay.
package main

import (
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/driftbyte/driftbyte/internal/config"
	"github.com/driftbyte/driftbyte/internal/discovery"
	"github.com/driftbyte/driftbyte/internal/logging"
	"github.com/driftbyte/driftbyte/internal/relay"
)

func main() {
	cfg := config.ParseServerConfig()
	logger := logging.New("driftserv", cfg.LogLevel)

	hub := relay.NewHub()
	server := relay.NewServer(hub, logger)

	if cfg.Advertise {
		port := cfg.AdvertisePort
		if port == 0 {
			p, err := portFromAddr(cfg.Addr)
			if err != nil {
				logger.Error("cannot derive advertise port", "addr", cfg.Addr, "error", err)
				os.Exit(1)
			}
			port = p
		}
		adv, err := discovery.Advertise(cfg.AdvertiseName, port)
		if err != nil {
			logger.Error("mDNS advertisement failed", "error", err)
			os.Exit(1)
		}
		defer adv.Stop()
		logger.Info("relay advertised via mDNS", "instance", cfg.AdvertiseName, "port", port)
	}

	logger.Info("relay listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, server.Handler()); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func portFromAddr(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
