// Command drift is a minimal signaling client: it connects to a relay,
// prints membership changes and incoming messages, and relays stdin lines
// to the configured target peer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/driftbyte/driftbyte/internal/config"
	"github.com/driftbyte/driftbyte/internal/discovery"
	"github.com/driftbyte/driftbyte/internal/logging"
	"github.com/driftbyte/driftbyte/internal/signaling"
	"github.com/driftbyte/driftbyte/pkg/protocol"
)

func main() {
	cfg := config.ParseClientConfig()
	logger := logging.New("drift", cfg.LogLevel)

	client := signaling.NewClient(signaling.Config{
		URL:             cfg.ServerURL,
		PreferDiscovery: cfg.PreferDiscovery,
		Provider:        discovery.NewMDNSProvider(),
		DialTimeout:     cfg.DialTimeout,
		Logger:          logger,
	})
	defer client.Disconnect()

	client.Peers().Subscribe(func(peers []string) {
		fmt.Printf("peers: %s\n", strings.Join(peers, ", "))
	})
	client.SetOnMessage(func(from string, payload json.RawMessage) {
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			text = string(payload)
		}
		fmt.Printf("[%s] %s\n", from, text)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("connected as %s\n", client.ClientID())

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			to := cfg.TargetPeer
			// Lines of the form "peer-id: text" override the default target.
			if i := strings.Index(line, ": "); i > 0 {
				to, line = line[:i], line[i+2:]
			}
			if to == "" {
				fmt.Fprintln(os.Stderr, "no target peer; use -to or 'peer-id: text'")
				continue
			}
			env, err := protocol.NewMessageEnvelope(to, line)
			if err != nil {
				logger.Warn("cannot build envelope", "error", err)
				continue
			}
			client.Send(env)
		}
	}()

	<-ctx.Done()
}
