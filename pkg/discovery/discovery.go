// Package discovery advertises a server on the local network over mDNS and lets clients find it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_syncity._tcp"
	Domain  = "local."
)

var ErrNotFound = errors.New("no server found")

// Advertise registers the server under an instance name derived from the hostname. The returned function withdraws
// the registration.
func Advertise(port int) (func(), error) {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("%s-%s", "syncity", host),
		Service,
		Domain,
		port,
		[]string{"path=/ws"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server.Shutdown, nil
}

// Lookup browses for an advertised server until ctx is done and returns the address of the first one found.
func Lookup(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if addr := entryAddr(entry); addr != "" {
				return addr, nil
			}
		case <-ctx.Done():
			return "", ErrNotFound
		}
	}
}

func entryAddr(entry *zeroconf.ServiceEntry) string {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
}
