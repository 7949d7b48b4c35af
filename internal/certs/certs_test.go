package certs

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return parsed
}

func TestStore_Certificate(t *testing.T) {
	tests := []struct {
		setup   func(t *testing.T, dir string) []byte
		check   func(t *testing.T, cert *x509.Certificate, previous []byte)
		name    string
		hosts   []string
		reissue bool
	}{
		{
			name: "issues when none exists",
			check: func(t *testing.T, cert *x509.Certificate, _ []byte) {
				t.Helper()
				assert.Equal(t, "parcel", cert.Subject.Organization[0])
				assert.Contains(t, cert.DNSNames, "localhost")
				assert.True(t, cert.NotAfter.After(time.Now().Add(Lifetime-time.Hour)))
				assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
			},
		},
		{
			name: "reuses a valid certificate",
			setup: func(t *testing.T, dir string) []byte {
				t.Helper()
				cert, err := NewStore(dir).Certificate()
				require.NoError(t, err)
				return cert.Certificate[0]
			},
			check: func(t *testing.T, cert *x509.Certificate, previous []byte) {
				t.Helper()
				assert.Equal(t, previous, cert.Raw)
			},
		},
		{
			name: "reissues unreadable files",
			setup: func(t *testing.T, dir string) []byte {
				t.Helper()
				require.NoError(t, os.MkdirAll(dir, 0o700))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "parcel.crt"), []byte("junk"), 0o600))
				require.NoError(t, os.WriteFile(filepath.Join(dir, "parcel.key"), []byte("junk"), 0o600))
				return nil
			},
			check: func(t *testing.T, cert *x509.Certificate, _ []byte) {
				t.Helper()
				assert.NoError(t, cert.VerifyHostname("localhost"))
			},
		},
		{
			name:  "reissues when a new host is configured",
			hosts: []string{"192.168.1.20"},
			setup: func(t *testing.T, dir string) []byte {
				t.Helper()
				cert, err := NewStore(dir).Certificate()
				require.NoError(t, err)
				return cert.Certificate[0]
			},
			check: func(t *testing.T, cert *x509.Certificate, previous []byte) {
				t.Helper()
				assert.NotEqual(t, previous, cert.Raw)
				assert.True(t, cert.IPAddresses[len(cert.IPAddresses)-1].Equal(net.ParseIP("192.168.1.20")))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "certs")
			var previous []byte
			if tt.setup != nil {
				previous = tt.setup(t, dir)
			}

			cert, err := NewStore(dir, tt.hosts...).Certificate()
			require.NoError(t, err)
			tt.check(t, leaf(t, cert), previous)

			info, err := os.Stat(filepath.Join(dir, "parcel.key"))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		})
	}
}

func TestStore_RenewsNearExpiry(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	first, err := s.Certificate()
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(Lifetime - RenewBefore + time.Hour) }
	second, err := s.Certificate()
	require.NoError(t, err)

	assert.NotEqual(t, first.Certificate[0], second.Certificate[0])
}

func TestStore_TLSRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	cfg, err := s.TLSConfig()
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	srv.TLS = cfg
	srv.StartTLS()
	defer srv.Close()

	pool, err := s.CertPool()
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStore_CertPoolMissing(t *testing.T) {
	_, err := NewStore(t.TempDir()).CertPool()
	assert.Error(t, err)
}
