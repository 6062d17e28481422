// Package auth provides ADP API credentials and OAuth2 client-credentials
// token lifecycle management over mutual TLS.
package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Default certificate/key locations, assumed relative to the working
// directory when the environment does not specify them.
const (
	DefaultCertPath = "certificate.pem"
	DefaultKeyPath  = "adp.key"
)

// ErrMissingCredentials is returned when client id or secret is absent.
var ErrMissingCredentials = errors.New("client id and client secret must be set")

// ErrCertificateNotFound is returned when the certificate or key file
// does not exist.
var ErrCertificateNotFound = errors.New("certificate or key file not found")

// Credentials holds the ADP client credentials and the mTLS material
// locations. Immutable after construction.
type Credentials struct {
	ClientID     string
	ClientSecret string
	CertPath     string
	KeyPath      string
}

// CredentialsFromEnv loads credentials from CLIENT_ID, CLIENT_SECRET,
// CERT_PATH and KEY_PATH. Certificate paths fall back to the defaults
// with a warning, matching the documented client setup.
func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		CertPath:     os.Getenv("CERT_PATH"),
		KeyPath:      os.Getenv("KEY_PATH"),
	}

	if creds.CertPath == "" {
		log.Warn().
			Str("default", DefaultCertPath).
			Msg("CERT_PATH not set, using default certificate path")
		creds.CertPath = DefaultCertPath
	}
	if creds.KeyPath == "" {
		log.Warn().
			Str("default", DefaultKeyPath).
			Msg("KEY_PATH not set, using default key path")
		creds.KeyPath = DefaultKeyPath
	}

	if creds.ClientID == "" || creds.ClientSecret == "" {
		return Credentials{}, ErrMissingCredentials
	}

	return creds, nil
}

// Validate checks that all credential fields are present and that the
// certificate and key files exist. Configuration errors fail fast here
// and are never retried.
func (c Credentials) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	if c.CertPath == "" || c.KeyPath == "" {
		return fmt.Errorf("%w: empty path", ErrCertificateNotFound)
	}

	for _, path := range []string{c.CertPath, c.KeyPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrCertificateNotFound, path)
		}
	}

	return nil
}

// NewTLSClient builds an HTTP client with the client certificate attached.
// The transport is created once per session and reused across calls so the
// underlying connection pool is shared.
func NewTLSClient(creds Credentials, timeout time.Duration) (*http.Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(creds.CertPath, creds.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
