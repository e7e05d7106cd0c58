package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/proxy"
)

// NewSocksClient returns an HTTP client that dials through the SOCKS5 proxy
// at socksAddr. An optional socks5:// prefix is accepted. The client has no
// overall timeout; callers bound requests through their context.
func NewSocksClient(socksAddr string) (*http.Client, error) {
	addr := strings.TrimPrefix(strings.TrimSpace(socksAddr), "socks5://")
	if addr == "" {
		return nil, fmt.Errorf("empty socks proxy address")
	}

	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", addr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{Transport: transport}, nil
}
