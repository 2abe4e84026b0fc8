package config

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"

	"k8s.io/utils/env"
)

// tlsVersions maps the accepted --tls-min-version spellings to crypto/tls constants.
var tlsVersions = map[string]uint16{
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// TLSVersion is a flag.Value accepting "1.2" or "1.3". The zero value means TLS 1.2.
type TLSVersion uint16

var _ flag.Value = (*TLSVersion)(nil)

func (v *TLSVersion) String() string {
	if v != nil && uint16(*v) == tls.VersionTLS13 {
		return "1.3"
	}
	return "1.2"
}

func (v *TLSVersion) Set(s string) error {
	version, ok := tlsVersions[s]
	if !ok {
		return fmt.Errorf("unsupported TLS version %q: must be 1.2 or 1.3", s)
	}
	*v = TLSVersion(version)
	return nil
}

// Value returns the crypto/tls constant for the configured floor.
func (v *TLSVersion) Value() uint16 {
	if v == nil || *v == 0 {
		return tls.VersionTLS12
	}
	return uint16(*v)
}

// TLSConfig holds the optional HTTPS settings for the relay listener.
type TLSConfig struct {
	Cert       string
	Key        string
	SelfSigned bool
	MinVersion TLSVersion

	// envErr records a malformed TLS_* variable until Validate reports it.
	envErr error
}

// Enabled reports whether the listener serves HTTPS.
func (t *TLSConfig) Enabled() bool {
	return t.HasCerts() || t.SelfSigned
}

// HasCerts reports whether a certificate and key file pair is configured.
func (t *TLSConfig) HasCerts() bool {
	return t.Cert != "" && t.Key != ""
}

// loadTLSConfig reads the TLS_* variables. Values are applied before flags are
// bound, so --tls-* flags always take precedence.
func loadTLSConfig() TLSConfig {
	t := TLSConfig{
		Cert:       env.GetString("TLS_CERT", ""),
		Key:        env.GetString("TLS_KEY", ""),
		MinVersion: TLSVersion(tls.VersionTLS12),
	}

	selfSigned, err := env.GetBool("TLS_SELF_SIGNED", false)
	if err != nil {
		t.envErr = fmt.Errorf("invalid TLS_SELF_SIGNED: %w", err)
	}
	t.SelfSigned = selfSigned

	if raw := env.GetString("TLS_MIN_VERSION", ""); raw != "" {
		if err := t.MinVersion.Set(raw); err != nil {
			t.envErr = errors.Join(t.envErr, err)
		}
	}

	return t
}

func (t *TLSConfig) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&t.Cert, "tls-cert", t.Cert, "Path to the TLS certificate")
	fs.StringVar(&t.Key, "tls-key", t.Key, "Path to the TLS private key")
	fs.BoolVar(&t.SelfSigned, "tls-self-signed", t.SelfSigned, "Serve HTTPS with a generated self-signed certificate")
	fs.Var(&t.MinVersion, "tls-min-version", "Minimum TLS version: 1.2 or 1.3")
}

func (t *TLSConfig) validate() error {
	if t.envErr != nil {
		return t.envErr
	}

	if (t.Cert != "") != (t.Key != "") {
		return errors.New("--tls-cert and --tls-key must both be provided together")
	}

	// Certificate files take precedence over a generated certificate.
	if t.HasCerts() {
		t.SelfSigned = false
	}

	return nil
}
