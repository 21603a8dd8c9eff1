package httpapi

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ListenConfig describes the two listeners spec.md §6 allows: a cleartext
// HTTP/2 (h2c) listener on Host:Port, and an optional TLS HTTP/2 listener on
// Host:SSLPort when SSLCert/SSLKey are both set.
type ListenConfig struct {
	Host            string
	Port            string
	SSLPort         string
	SSLCert         string
	SSLKey          string
	ShutdownTimeout time.Duration
}

// Listeners bundles the servers Serve starts, so main can wait on their
// combined lifetime and shut both down together.
type Listeners struct {
	plain *http.Server
	tls   *http.Server
}

// NewListeners wraps handler in h2c (for the cleartext listener) and native
// HTTP/2 (for the TLS listener, negotiated via ALPN), building each
// *http.Server first and deciding the transport at ListenAndServe time.
func NewListeners(cfg ListenConfig, handler http.Handler) *Listeners {
	h2s := &http2.Server{}
	plainHandler := h2c.NewHandler(handler, h2s)

	l := &Listeners{
		plain: &http.Server{
			Addr:    net.JoinHostPort(cfg.Host, cfg.Port),
			Handler: plainHandler,
		},
	}

	if cfg.SSLCert != "" && cfg.SSLKey != "" {
		tlsSrv := &http.Server{
			Addr:    net.JoinHostPort(cfg.Host, cfg.SSLPort),
			Handler: handler,
			TLSConfig: &tls.Config{
				NextProtos: []string{"h2", "http/1.1"},
			},
		}
		_ = http2.ConfigureServer(tlsSrv, h2s)
		l.tls = tlsSrv
	}

	return l
}

// Serve starts both configured listeners and blocks until either exits with
// a non-shutdown error, or ctx is cancelled — at which point both are given
// shutdownTimeout to drain in-flight requests before returning.
func (l *Listeners) Serve(ctx context.Context, certFile, keyFile string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 2)

	go func() {
		if err := l.plain.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if l.tls != nil {
		go func() {
			if err := l.tls.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		l.shutdown(shutdownTimeout)
		return err
	case <-ctx.Done():
		l.shutdown(shutdownTimeout)
		return nil
	}
}

func (l *Listeners) shutdown(timeout time.Duration) {
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = l.plain.Shutdown(sctx)
	if l.tls != nil {
		_ = l.tls.Shutdown(sctx)
	}
}
