package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name a relay advertises under.
	DefaultService = "_driftbyte-relay._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultBrowseTimeout bounds one discovery scan.
	DefaultBrowseTimeout = 3 * time.Second
)

// ErrNoRelayFound indicates that a scan completed without locating a relay.
var ErrNoRelayFound = errors.New("no relay found on the local network")

type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// MDNSProvider discovers a relay advertised on the local network via mDNS.
type MDNSProvider struct {
	Service       string
	Domain        string
	BrowseTimeout time.Duration

	browseFn browseFunc
}

// NewMDNSProvider creates a provider with default service parameters.
func NewMDNSProvider() *MDNSProvider {
	return &MDNSProvider{
		Service:       DefaultService,
		Domain:        DefaultDomain,
		BrowseTimeout: DefaultBrowseTimeout,
	}
}

var _ Provider = (*MDNSProvider)(nil)

// Discover browses for a relay advertisement and returns its websocket URL.
// The first usable entry wins.
func (p *MDNSProvider) Discover(ctx context.Context) (string, error) {
	browse := p.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return "", fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	timeout := p.BrowseTimeout
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := browse(browseCtx, p.service(), p.domain(), entries); err != nil {
		return "", fmt.Errorf("mDNS browse: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoRelayFound
			}
			if url, ok := endpointFromEntry(entry); ok {
				return url, nil
			}
		case <-browseCtx.Done():
			return "", ErrNoRelayFound
		}
	}
}

func (p *MDNSProvider) service() string {
	if p.Service == "" {
		return DefaultService
	}
	return p.Service
}

func (p *MDNSProvider) domain() string {
	if p.Domain == "" {
		return DefaultDomain
	}
	return p.Domain
}

func endpointFromEntry(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return "", false
	}
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(host, fmt.Sprint(entry.Port))), true
}

// Advertiser announces a relay on the local network so providers can find
// it.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers an mDNS announcement for a relay listening on port.
func Advertise(instance string, port int) (*Advertiser, error) {
	return advertise(instance, port, zeroconf.Register)
}

func advertise(instance string, port int, register registerFunc) (*Advertiser, error) {
	if instance == "" {
		return nil, errors.New("instance name is required")
	}
	if port <= 0 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	server, err := register(instance, DefaultService, DefaultDomain, port, []string{"path=/ws"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Stop withdraws the announcement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
