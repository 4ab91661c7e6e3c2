// Package tlsutil builds a *tls.Config from on-disk PEM files for the
// retry API's optional TLS listener, adapted from
// kernel/internal/tls/tls.go's server-cert-plus-optional-client-CA shape.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// NewServerConfig builds a server-side tls.Config from serverCertFile and
// serverKeyFile (PEM). If clientCAFile is non-empty, client certificates
// are verified against it; requireClientCert promotes that from optional
// (VerifyClientCertIfGiven) to mandatory (RequireAndVerifyClientCert).
func NewServerConfig(serverCertFile, serverKeyFile, clientCAFile string, requireClientCert bool) (*tls.Config, error) {
	if serverCertFile == "" || serverKeyFile == "" {
		return nil, fmt.Errorf("tlsutil: server cert and key files are required")
	}

	cert, err := tls.LoadX509KeyPair(serverCertFile, serverKeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsutil: load server cert/key: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if clientCAFile == "" {
		if requireClientCert {
			return nil, fmt.Errorf("tlsutil: requireClientCert is set but no client CA file was provided")
		}
		cfg.ClientAuth = tls.NoClientCert
		return cfg, nil
	}

	caPEM, err := os.ReadFile(clientCAFile)
	if err != nil {
		return nil, fmt.Errorf("tlsutil: read client CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("tlsutil: no certificates parsed from client CA file")
	}
	cfg.ClientCAs = pool
	if requireClientCert {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, nil
}
