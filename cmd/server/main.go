package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrylevesque/callform/internal/api"
	"github.com/harrylevesque/callform/internal/calls"
	"github.com/harrylevesque/callform/internal/certs"
	"github.com/harrylevesque/callform/internal/config"
	"github.com/harrylevesque/callform/internal/form"
	"github.com/harrylevesque/callform/internal/notify"
	"github.com/harrylevesque/callform/internal/utils"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.json")
	addrFlag := flag.String("addr", "", "listen address, overrides config")
	endpointFlag := flag.String("endpoint", "", "calls endpoint URL, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}
	if *endpointFlag != "" {
		cfg.Endpoint = *endpointFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var queue notify.Queue
	if cfg.RedisAddr != "" {
		rq, err := notify.NewRedisQueue(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.TTL())
		if err != nil {
			log.Fatalf("notification queue: %v", err)
		}
		queue = rq
		logger.Infof("notifications stored in redis at %s", cfg.RedisAddr)
	} else {
		mq := notify.NewExpiringMemoryQueue(cfg.TTL())
		go mq.RunPruner(ctx, time.Minute)
		queue = mq
	}
	defer queue.Close()

	client, err := calls.NewClient(cfg.Endpoint, calls.WithTimeout(cfg.Timeout()))
	if err != nil {
		log.Fatalf("calls client: %v", err)
	}

	forms := form.NewRegistry(client, queue, logger)
	if idle := cfg.IdleTimeout(); idle > 0 {
		go forms.RunSweeper(ctx, time.Minute, idle)
	}

	if cfg.SessionSecret == "" {
		logger.Warn("no session secret configured, browser sessions will not survive a restart")
	}
	store, err := api.NewSessionStore(cfg.SessionSecret)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	server, err := api.NewServer(api.Options{
		Forms:    forms,
		Queue:    queue,
		Sessions: store,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("template init failed: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLSCert != "" {
		cm := certs.NewCertManager(cfg.TLSCert, cfg.TLSKey)
		tlsConfig, err := cm.TLSConfig(time.Now())
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
		if cert, err := cm.LoadCertificate(); err == nil && cm.ExpiresWithin(cert, time.Now(), 30*24*time.Hour) {
			logger.Warnf("certificate %s expires at %s", cfg.TLSCert, cert.NotAfter.Format(time.RFC3339))
		}
		srv.TLSConfig = tlsConfig
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := logger.Reopen(); err != nil {
				log.Printf("failed to reopen log file: %v", err)
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("serving form on %s, calls endpoint %s", cfg.ListenAddr, client.Endpoint())
	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		logger.Errorf("server failed: %v", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
