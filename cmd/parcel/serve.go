package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/parcel/internal/api"
	"github.com/Veraticus/parcel/internal/certs"
	"github.com/Veraticus/parcel/internal/config"
	"github.com/Veraticus/parcel/internal/notify"
	"github.com/Veraticus/parcel/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the submit/decide API, a websocket event stream at /events and
Prometheus metrics at /metrics. Events are also published to NATS when
notify.nats_url is set.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("tls", false, "serve HTTPS with a self-signed certificate (overrides server.tls)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	hub := notify.NewHub(slog.Default())
	defer hub.Close()
	notifiers := []service.Notifier{hub}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Notify.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Notify.SubjectPrefix, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer func() { _ = nc.Close() }()
		notifiers = append(notifiers, nc)
	}

	a, err := newApp(ctx, notifiers...)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if flag, _ := cmd.Flags().GetString("addr"); flag != "" {
		addr = flag
	}

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Pipeline: a.pipeline,
			Audit:    a.storage,
			Events:   hub.Handler(),
			Metrics:  promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			Logger:   slog.Default(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := a.cfg.Server.TLS
	if flag, _ := cmd.Flags().GetBool("tls"); flag {
		useTLS = true
	}
	if useTLS {
		tlsConfig, err := serverCerts(a.cfg, addr).TLSConfig()
		if err != nil {
			return fmt.Errorf("failed to prepare certificate: %w", err)
		}
		srv.TLSConfig = tlsConfig
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Serving", "addr", addr, "tls", useTLS, "nats", a.cfg.Notify.NATSURL != "")
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// serverCerts returns the certificate store for addr's host.
func serverCerts(cfg config.Config, addr string) *certs.Store {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return certs.NewStore(cfg.Server.CertDir, host)
}
