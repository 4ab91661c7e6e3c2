package tlsutil

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return k
}

func pemCert(der []byte) []byte {
	buf := &bytes.Buffer{}
	_ = pem.Encode(buf, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	return buf.Bytes()
}

func pemKey(key *rsa.PrivateKey) []byte {
	buf := &bytes.Buffer{}
	_ = pem.Encode(buf, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, b []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// certBundle builds a leaf certificate signed by the given CA.
func certBundle(t *testing.T, caKey *rsa.PrivateKey, caCertDER []byte, caCert *x509.Certificate, cn string, isCA bool) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key := genRSAKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"127.0.0.1", "localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return key, der
}

func TestNewServerConfig_MissingCertOrKeyReturnsError(t *testing.T) {
	if _, err := NewServerConfig("", "", "", false); err == nil {
		t.Fatalf("expected an error when cert/key files are not provided")
	}
}

func TestNewServerConfig_RequireClientCertWithoutCAReturnsError(t *testing.T) {
	dir := t.TempDir()
	caKey := genRSAKey(t)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}
	caCert, _ := x509.ParseCertificate(caDER)

	serverKey, serverDER := certBundle(t, caKey, caDER, caCert, "server", false)
	serverCertPath := writeFile(t, dir, "server.pem", pemCert(serverDER))
	serverKeyPath := writeFile(t, dir, "server.key", pemKey(serverKey))

	if _, err := NewServerConfig(serverCertPath, serverKeyPath, "", true); err == nil {
		t.Fatalf("expected an error requiring client certs without a client CA file")
	}
}

func TestNewServerConfig_EnforcesMutualTLS(t *testing.T) {
	dir := t.TempDir()

	caKey := genRSAKey(t)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}
	caCert, _ := x509.ParseCertificate(caDER)
	caCertPath := writeFile(t, dir, "ca.pem", pemCert(caDER))

	serverKey, serverDER := certBundle(t, caKey, caDER, caCert, "server", false)
	serverCertPath := writeFile(t, dir, "server.pem", pemCert(serverDER))
	serverKeyPath := writeFile(t, dir, "server.key", pemKey(serverKey))

	clientKey, clientDER := certBundle(t, caKey, caDER, caCert, "client", false)

	cfg, err := NewServerConfig(serverCertPath, serverKeyPath, caCertPath, true)
	if err != nil {
		t.Fatalf("NewServerConfig: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = cfg
	srv.StartTLS()
	defer srv.Close()

	rootPool := x509.NewCertPool()
	rootPool.AddCert(caCert)

	// A client presenting no certificate must be rejected.
	noCertClient := srv.Client()
	noCertClient.Transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: rootPool}}
	if _, err := noCertClient.Get(srv.URL); err == nil {
		t.Fatalf("expected handshake failure for a client with no certificate")
	}

	// A client presenting a CA-signed certificate must be accepted.
	clientCert := tls.Certificate{Certificate: [][]byte{clientDER}, PrivateKey: clientKey}
	withCertClient := srv.Client()
	withCertClient.Transport = &http.Transport{TLSClientConfig: &tls.Config{
		RootCAs:      rootPool,
		Certificates: []tls.Certificate{clientCert},
	}}
	resp, err := withCertClient.Get(srv.URL)
	if err != nil {
		t.Fatalf("expected a client cert to be accepted, got %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
