package tg

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

const (
	probeTimeout      = 3 * time.Second
	proxyProbeTimeout = 5 * time.Second
)

// checkNetwork делает диагностику при старте: ничего не блокирует, только пишет в лог
func checkNetwork(logger *slog.Logger, proxyCfg *ProxyConfig) {
	probe(logger, "tcp4", "8.8.8.8:53", probeTimeout)
	probe(logger, "tcp6", "[2606:4700:4700::1111]:53", probeTimeout)

	if proxyCfg == nil || !proxyCfg.Enabled {
		logger.Info("proxy disabled, skipping check")
		return
	}
	if err := checkProxy(logger, proxyCfg); err != nil {
		logger.Error("proxy unreachable, sessions will fail to connect", "server", proxyCfg.Server, "port", proxyCfg.Port, "error", err)
	}
}

func probe(logger *slog.Logger, network, addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		logger.Warn("connectivity probe failed", "network", network, "addr", addr, "error", err)
		return false
	}
	_ = conn.Close()
	logger.Info("connectivity probe ok", "network", network, "addr", addr)
	return true
}

// checkProxy пробует прокси: IP-литерал, по его семейству,
// hostname: сначала IPv6, потом IPv4.
func checkProxy(logger *slog.Logger, p *ProxyConfig) error {
	port := strconv.Itoa(int(p.Port))
	addr := net.JoinHostPort(p.Server, port)

	var networks []string
	switch ip := net.ParseIP(p.Server); {
	case ip != nil && ip.To4() != nil:
		networks = []string{"tcp4"}
	case ip != nil:
		networks = []string{"tcp6"}
	default:
		networks = []string{"tcp6", "tcp4"}
	}

	var errs []error
	for _, network := range networks {
		if probe(logger, network, addr, proxyProbeTimeout) {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s %s unreachable", network, addr))
	}
	return errors.Join(errs...)
}
