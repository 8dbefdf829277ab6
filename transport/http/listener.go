package http

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v3"
)

// createListener 在启动 Serve 之前创建 net.Listener，保证端口绑定失败能同步上报
func createListener(addr string, config fiber.ListenConfig) (net.Listener, error) {
	network := config.ListenerNetwork
	if network == "" {
		network = "tcp4"
	}

	if config.CertFile == "" || config.CertKeyFile == "" {
		return net.Listen(network, addr)
	}

	cert, err := tls.LoadX509KeyPair(config.CertFile, config.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if config.TLSMinVersion > 0 {
		tlsConfig.MinVersion = config.TLSMinVersion
	}
	if config.CertClientFile != "" {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tls.Listen(network, addr, tlsConfig)
}
