package serve

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/config"
	"github.com/soheilhy/cmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const defaultReadHeaderTimeout = 5 * time.Second

// Listener is one bound TCP port. When both modes are enabled cmux routes
// TLS handshakes to the TLS server and everything else to plaintext, which
// also speaks h2c.
type Listener struct {
	Name string
	Addr net.Addr
	Port int

	base    net.Listener
	servers []*http.Server
	once    sync.Once
	err     error
}

// Listen binds cfg and starts serving handler. name only labels log lines.
func Listen(name string, cfg config.ListenerConfig, handler http.Handler) (*Listener, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		return nil, fmt.Errorf("%s listener: enable plaintext, tls or both", name)
	}
	timeout := cfg.ReadHeaderTimeout
	if timeout == 0 {
		timeout = defaultReadHeaderTimeout
	}

	var cert tls.Certificate
	if cfg.EnableTLS {
		var err error
		if cert, err = serverCertificate(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil {
			return nil, fmt.Errorf("%s listener: %w", name, err)
		}
	}

	base, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("%s listener: %w", name, err)
	}
	l := &Listener{Name: name, Addr: base.Addr(), base: base}
	if tcp, ok := base.Addr().(*net.TCPAddr); ok {
		l.Port = tcp.Port
	}

	// TLS must be matched first since cmux.Any accepts every connection.
	m := cmux.New(base)
	if cfg.EnableTLS {
		inner := m.Match(cmux.TLS())
		l.serve("tls", &http.Server{Handler: handler, ReadHeaderTimeout: timeout}, tls.NewListener(inner, &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		}))
	}
	if cfg.EnablePlainText {
		l.serve("plaintext", &http.Server{
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: timeout,
		}, m.Match(cmux.Any()))
	}
	go func() {
		if err := m.Serve(); err != nil && !errors.Is(err, net.ErrClosed) && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Error("Listener stopped", "listener", name, "err", err)
		}
	}()
	return l, nil
}

func (l *Listener) serve(mode string, srv *http.Server, lis net.Listener) {
	l.servers = append(l.servers, srv)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped", "listener", l.Name, "mode", mode, "err", err)
		}
	}()
}

// Close drains every server and releases the port. Later calls return the
// first call's result.
func (l *Listener) Close(ctx context.Context) error {
	l.once.Do(func() {
		var errs []error
		for _, srv := range l.servers {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}
		_ = l.base.Close()
		l.err = errors.Join(errs...)
	})
	return l.err
}

// serverCertificate loads the configured key pair, or mints a throwaway
// self-signed one for localhost when either file is unset.
func serverCertificate(certFile, keyFile string) (tls.Certificate, error) {
	if strings.TrimSpace(certFile) == "" || strings.TrimSpace(keyFile) == "" {
		return selfSignedCertificate(time.Now())
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load tls key pair: %w", err)
	}
	return cert, nil
}

func selfSignedCertificate(now time.Time) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("self-signed key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("self-signed serial: %w", err)
	}

	leaf := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"chatmem"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, leaf, leaf, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("self-signed certificate: %w", err)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("self-signed certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: parsed}, nil
}
