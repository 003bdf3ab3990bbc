package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/stretchr/testify/require"
)

func protoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tlsState := "plain"
		if r.TLS != nil {
			tlsState = "tls"
		}
		_, _ = fmt.Fprint(w, tlsState)
	})
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

func TestListen_PlainAndTLSShareOnePort(t *testing.T) {
	l, err := Listen("test", config.ListenerConfig{
		Host:            "127.0.0.1",
		EnablePlainText: true,
		EnableTLS:       true,
	}, protoHandler())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	require.NotZero(t, l.Port)

	plain := &http.Client{Timeout: 5 * time.Second}
	require.Equal(t, "plain", get(t, plain, fmt.Sprintf("http://127.0.0.1:%d/", l.Port)))

	secure := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}, //nolint:gosec
	}
	require.Equal(t, "tls", get(t, secure, fmt.Sprintf("https://127.0.0.1:%d/", l.Port)))
}

func TestListen_RequiresAMode(t *testing.T) {
	_, err := Listen("test", config.ListenerConfig{Host: "127.0.0.1"}, protoHandler())
	require.Error(t, err)
}

func TestListen_BadKeyPairFailsBeforeBinding(t *testing.T) {
	_, err := Listen("test", config.ListenerConfig{
		Host:        "127.0.0.1",
		EnableTLS:   true,
		TLSCertFile: "/does/not/exist.crt",
		TLSKeyFile:  "/does/not/exist.key",
	}, protoHandler())
	require.ErrorContains(t, err, "load tls key pair")
}

func TestListenerClose_IsIdempotent(t *testing.T) {
	l, err := Listen("test", config.ListenerConfig{Host: "127.0.0.1", EnablePlainText: true}, protoHandler())
	require.NoError(t, err)

	require.NoError(t, l.Close(context.Background()))
	require.NoError(t, l.Close(context.Background()))

	client := &http.Client{Timeout: time.Second}
	_, err = client.Get(fmt.Sprintf("http://127.0.0.1:%d/", l.Port))
	require.Error(t, err)
}

func TestSelfSignedCertificate_CoversLocalhost(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cert, err := selfSignedCertificate(now)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	require.NoError(t, cert.Leaf.VerifyHostname("localhost"))
	require.NoError(t, cert.Leaf.VerifyHostname("127.0.0.1"))
	require.True(t, cert.Leaf.NotAfter.After(now))
}
