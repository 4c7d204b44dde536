// Command corgi-server serves a set of demo functions over the corgi datagram
// protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corgi-rpc/codec"
	"corgi-rpc/config"
	"corgi-rpc/logging"
	"corgi-rpc/middleware"
	"corgi-rpc/registry"
	"corgi-rpc/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	listen := flag.String("listen", "", "Override listen_addr")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if err := logging.Init(logging.Options{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		ReportCaller: cfg.Logging.ReportCaller,
	}); err != nil {
		logrus.Fatalf("Failed to init logging: %v", err)
	}

	codecType, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		logrus.Fatalf("Invalid codec: %v", err)
	}
	functions := demoFunctions(codecType)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.NewServer(functions,
		server.WithCodec(codec.GetCodec(codecType)),
		server.WithDatagramSize(cfg.DatagramSize),
		server.WithMaxPending(cfg.Reassembly.MaxPending),
		server.WithReassemblyTTL(cfg.Reassembly.TTL),
		server.WithSweepInterval(cfg.Reassembly.SweepInterval),
		server.WithLeaseTTL(cfg.Etcd.LeaseTTL),
		server.WithMetrics(server.NewMetrics(promRegistry)),
	)
	srv.Use(middleware.LoggingMiddleware(logrus.StandardLogger()))
	if cfg.Dispatch.RateLimit > 0 {
		srv.Use(middleware.RateLimitMiddleware(cfg.Dispatch.RateLimit, cfg.Dispatch.RateBurst))
	}
	if cfg.Dispatch.Timeout > 0 {
		srv.Use(middleware.TimeOutMiddleware(cfg.Dispatch.Timeout))
	}

	if err := srv.Listen("udp", cfg.ListenAddr); err != nil {
		logrus.Fatalf("Failed to listen: %v", err)
	}

	var reg registry.Registry
	if len(cfg.Etcd.Endpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			logrus.Fatalf("Failed to connect registry: %v", err)
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	var admin *http.Server
	if cfg.Admin.ListenAddr != "" {
		admin = &http.Server{
			Addr:              cfg.Admin.ListenAddr,
			Handler:           adminRouter(functions, promRegistry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("Admin server stopped: %v", err)
			}
		}()
		logrus.Infof("Admin endpoint listening on %s", cfg.Admin.ListenAddr)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(cfg.AdvertiseAddr, reg) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logrus.Infof("Received %s, shutting down", s)
	case err := <-served:
		if err != nil {
			logrus.Fatalf("Serve failed: %v", err)
		}
	}

	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		admin.Shutdown(ctx)
		cancel()
	}
	if err := srv.Shutdown(5 * time.Second); err != nil {
		logrus.Warnf("Shutdown: %v", err)
	}
	logrus.Info("Server stopped")
}
