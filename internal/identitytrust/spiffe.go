// Package identitytrust issues mTLS workload identities for collaborator
// HTTP clients that must authenticate to internal endpoints, grounded on
// internal/identity/spiffe.go's SPIRE workload API usage.
package identitytrust

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// Source wraps a SPIRE X.509 source and hands out mTLS-configured HTTP
// clients for collaborators that require mutual TLS.
type Source struct {
	source      *workloadapi.X509Source
	trustDomain string
}

// New connects to the SPIRE agent at socketPath. Call Close when done.
func New(ctx context.Context, socketPath, trustDomain string) (*Source, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(dialCtx, workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)))
	if err != nil {
		return nil, fmt.Errorf("identitytrust: connect to SPIRE agent at %s: %w", socketPath, err)
	}
	return &Source{source: source, trustDomain: trustDomain}, nil
}

// ClientFor returns an *http.Client that presents this workload's SVID and
// authorizes any peer in the configured trust domain, for collaborator
// calls that terminate at a peer sharing the same SPIFFE trust domain.
func (s *Source) ClientFor() (*http.Client, error) {
	td, err := spiffeid.TrustDomainFromString(s.trustDomain)
	if err != nil {
		return nil, fmt.Errorf("identitytrust: invalid trust domain %q: %w", s.trustDomain, err)
	}
	tlsConf := tlsconfig.MTLSClientConfig(s.source, s.source, tlsconfig.AuthorizeMemberOf(td))
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConf}}, nil
}

// RawTLSConfig exposes the underlying *tls.Config for callers building
// their own transport (e.g. a custom collaborator RPC client).
func (s *Source) RawTLSConfig() (*tls.Config, error) {
	td, err := spiffeid.TrustDomainFromString(s.trustDomain)
	if err != nil {
		return nil, fmt.Errorf("identitytrust: invalid trust domain %q: %w", s.trustDomain, err)
	}
	return tlsconfig.MTLSClientConfig(s.source, s.source, tlsconfig.AuthorizeMemberOf(td)), nil
}

// Close releases the SPIRE workload API connection.
func (s *Source) Close() error {
	return s.source.Close()
}
