package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyPair(t *testing.T, dir, cn string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certFile, keyFile
}

func TestCertLoader(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, "old.example.com")

	loader, err := NewCertLoader(certFile, keyFile, discardLogger())
	require.NoError(t, err)

	cfg := loader.TLSConfig()
	first, err := cfg.GetCertificate(nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	writeKeyPair(t, dir, "new.example.com")

	// Within the check interval the cached certificate is served.
	cached, err := loader.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	loader.mu.Lock()
	loader.checkInterval = 0
	loader.loadedAt = time.Time{}
	loader.mu.Unlock()

	renewed, err := loader.GetCertificate(nil)
	require.NoError(t, err)
	require.NotNil(t, renewed)
	assert.NotEqual(t, first.Certificate[0], renewed.Certificate[0])
}

func TestCertLoader_BrokenRenewalKeepsCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir, "example.com")

	loader, err := NewCertLoader(certFile, keyFile, discardLogger())
	require.NoError(t, err)
	first, err := loader.GetCertificate(nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0600))
	loader.mu.Lock()
	loader.checkInterval = 0
	loader.loadedAt = time.Time{}
	loader.mu.Unlock()

	got, err := loader.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestNewCertLoader_MissingFiles(t *testing.T) {
	_, err := NewCertLoader("missing.pem", "missing-key.pem", discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load key pair")
}
