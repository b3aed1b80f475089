// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/docindex/pkg/logger"
)

// Listener wraps a net.Listener and sets a deadline on every read and write
// of the accepted connections.
type Listener struct {
	net.Listener
	Timeout time.Duration
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c, Timeout: l.Timeout}, nil
}

// Conn is a net.Conn with a per-operation deadline.
type Conn struct {
	net.Conn
	Timeout time.Duration
}

func (c *Conn) Read(b []byte) (int, error) {
	if c.Timeout != 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *Conn) Write(b []byte) (int, error) {
	if c.Timeout != 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// NewListener listens on addr. A zero timeout disables the deadlines.
func NewListener(addr string, timeout time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		return listener, nil
	}
	return &Listener{Listener: listener, Timeout: timeout}, nil
}

// DetectedHostAddress returns the first non-loopback address of an up
// interface, preferring IPv4.
func DetectedHostAddress() string {
	netInterfaces, err := net.Interfaces()
	if err != nil {
		logger.Info().Err(err).Msg("failed to detect net interfaces")
		return ""
	}

	if v4 := selectIP(netInterfaces, true); v4 != "" {
		return v4
	}
	if v6 := selectIP(netInterfaces, false); v6 != "" {
		return v6
	}
	return "localhost"
}

func selectIP(netInterfaces []net.Interface, v4 bool) string {
	for _, netInterface := range netInterfaces {
		if netInterface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := netInterface.Addrs()
		if err != nil {
			logger.Info().Err(err).Str("interface", netInterface.Name).Msg("get interface addresses")
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			isV4 := ipNet.IP.To4() != nil
			if v4 && isV4 {
				return ipNet.IP.String()
			}
			// Link-local IPv6 addresses need a zone and cannot be bound.
			if !v4 && !isV4 && !ipNet.IP.IsLinkLocalUnicast() {
				return ipNet.IP.String()
			}
		}
	}
	return ""
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}
