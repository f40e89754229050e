package main

import (
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dnsfwd/api"
	"dnsfwd/config"
	"dnsfwd/logging"
	"dnsfwd/recordcache"
	"dnsfwd/resolver"
	"dnsfwd/resolver/query"
	"dnsfwd/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	testConf bool
	confPath string
	listen   string
	upstream string
	zapConf  string
	logLevel zapcore.Level
)

func init() {
	flag.BoolVar(&testConf, "testConf", false, "Test the configuration and exit")
	flag.StringVar(&confPath, "confPath", "", "Path to the JSON configuration file. Defaults are used when empty")
	flag.StringVar(&listen, "listen", "", "Override the listen address")
	flag.StringVar(&upstream, "upstream", "", "Override the upstream resolver address")
	flag.StringVar(&zapConf, "zapConf", "console", "Preset name or path to the JSON configuration file for building the zap logger.\nAvailable presets: console, console-nocolor, production, development")
	flag.TextVar(&logLevel, "logLevel", zapcore.InfoLevel, "Log level for the console presets.\nAvailable levels: debug, info, warn, error, dpanic, panic, fatal")
}

func main() {
	flag.Parse()

	logger, err := logging.NewZapLogger(zapConf, logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if confPath != "" {
		if cfg, err = config.Load(confPath); err != nil {
			logger.Fatal("Failed to load config",
				zap.String("confPath", confPath),
				zap.Error(err),
			)
		}
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if upstream != "" {
		if cfg.Upstream, err = netip.ParseAddrPort(upstream); err != nil {
			logger.Fatal("Bad upstream address", zap.String("upstream", upstream), zap.Error(err))
		}
	}
	if err = cfg.Validate(); err != nil {
		logger.Fatal("Invalid config", zap.String("confPath", confPath), zap.Error(err))
	}

	if testConf {
		logger.Info("Config test OK", zap.String("confPath", confPath))
		return
	}

	cache := recordcache.NewCache(cfg.Purge())
	if path := cfg.Snapshot(); path != "" {
		n, err := cache.LoadFile(path, time.Now())
		if err != nil {
			logger.Warn("Failed to load cache snapshot, starting empty",
				zap.String("path", path),
				zap.Error(err),
			)
		} else {
			logger.Info("Loaded cache snapshot", zap.String("path", path), zap.Int("records", n))
		}
	}

	client := query.NewClient(cfg.QueryConfig(), logger)
	forwarder := resolver.NewForwarder(cache, client, cfg.RemainingTTL, logger)

	s, err := server.NewServer(cfg.ServerConfig(), forwarder, logger)
	if err != nil {
		logger.Fatal("Failed to start DNS server", zap.String("listen", cfg.Listen), zap.Error(err))
	}
	go s.Start()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Listen, s, cache, cfg.Snapshot(), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("API server stopped", zap.String("listen", cfg.API.Listen), zap.Error(err))
			}
		}()
	}

	logger.Info("Forwarding queries",
		zap.String("listen", cfg.Listen),
		zap.Stringer("upstream", client.Upstream()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received exit signal", zap.Stringer("signal", sig))
	signal.Stop(sigCh)

	if err = s.Close(); err != nil {
		logger.Warn("Failed to close DNS server", zap.Error(err))
	}
	if apiServer != nil {
		if err = apiServer.Shutdown(); err != nil {
			logger.Warn("Failed to shut down API server", zap.Error(err))
		}
	}

	if path := cfg.Snapshot(); path != "" {
		if err = cache.SaveFile(path); err != nil {
			logger.Warn("Failed to save cache snapshot", zap.String("path", path), zap.Error(err))
		} else {
			logger.Info("Saved cache snapshot", zap.String("path", path), zap.Int("records", cache.Len()))
		}
	}
}
