package registry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	tls "github.com/refraction-networking/utls"
)

// Fingerprint names accepted by NewTransport.
const (
	FingerprintUTLS       = "utls"
	FingerprintCloudflare = "cloudflare"
	FingerprintNone       = "none"
)

// chromeH1Spec returns a Chrome ClientHello with ALPN restricted to
// http/1.1, since http.Transport cannot speak h2 over a utls conn.
func chromeH1Spec() (*tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return &spec, nil
}

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	spec, err := chromeH1Spec()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: build tls spec: %w", err)
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// NewTransport builds the round tripper for registry requests.
//
// With a proxy the CONNECT tunnel is negotiated by net/http, so the utls
// fingerprint only applies to direct connections.
func NewTransport(fingerprint, proxy string) (http.RoundTripper, error) {
	base := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("registry: parse proxy: %w", err)
		}
		base.Proxy = http.ProxyURL(proxyURL)
	}

	switch strings.ToLower(fingerprint) {
	case "", FingerprintUTLS:
		if proxy == "" {
			base.DialTLSContext = dialChromeTLS
		}
		return base, nil
	case FingerprintCloudflare:
		return cloudflarebp.AddCloudFlareByPass(base), nil
	case FingerprintNone:
		return base, nil
	default:
		return nil, fmt.Errorf("registry: unknown fingerprint %q", fingerprint)
	}
}
