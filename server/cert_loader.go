package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultCertCheckInterval limits how often the certificate files are stat'ed.
const defaultCertCheckInterval = time.Minute

// CertLoader serves the listener's TLS certificate and picks up renewed
// certificate files without a restart.
type CertLoader struct {
	certFile      string
	keyFile       string
	checkInterval time.Duration
	logger        *slog.Logger

	mu        sync.RWMutex
	cert      *tls.Certificate
	loadedAt  time.Time
	lastCheck time.Time
}

// NewCertLoader loads the key pair and returns a CertLoader for it.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	l := &CertLoader{
		certFile:      certFile,
		keyFile:       keyFile,
		checkInterval: defaultCertCheckInterval,
		logger:        logger,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// TLSConfig returns a tls.Config that serves the current certificate.
func (l *CertLoader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: l.GetCertificate,
	}
}

// GetCertificate is a callback for tls.Config.GetCertificate.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	if time.Since(l.lastCheck) < l.checkInterval {
		defer l.mu.RUnlock()
		return l.cert, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCheck) < l.checkInterval {
		return l.cert, nil
	}
	l.lastCheck = time.Now()

	changed, err := l.changed()
	if err != nil {
		l.logger.Error("failed to stat certificate files", "error", err)
		return l.cert, nil
	}
	if changed {
		// A broken renewal keeps serving the previous certificate.
		if err := l.load(); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.cert, nil
}

func (l *CertLoader) changed() (bool, error) {
	for _, path := range []string{l.certFile, l.keyFile} {
		st, err := os.Stat(path)
		if err != nil {
			return false, err
		}
		if st.ModTime().After(l.loadedAt) {
			return true, nil
		}
	}
	return false, nil
}

func (l *CertLoader) load() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.cert = &cert
	l.loadedAt = time.Now()
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
