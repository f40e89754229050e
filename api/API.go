package api

import (
	"dnsfwd/recordcache"
	"dnsfwd/server"
	"github.com/gofiber/contrib/fiberzap"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StandardError is the standard error response.
type StandardError struct {
	Message string `json:"error"`
}

// StatsSource reports the query counters of the DNS front end.
type StatsSource interface {
	Stats() server.Stats
}

// CacheInfo summarizes the record cache.
type CacheInfo struct {
	Buckets      int    `json:"buckets"`
	Records      int    `json:"records"`
	SnapshotPath string `json:"snapshotPath,omitempty"`
}

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	Server   server.Stats `json:"server"`
	HitRatio float64      `json:"hitRatio"`
	Cache    CacheInfo    `json:"cache"`
}

// Server is the admin HTTP API.
type Server struct {
	app          *fiber.App
	listen       string
	stats        StatsSource
	cache        *recordcache.Cache
	snapshotPath string
	logger       *zap.Logger
}

// NewServer returns an API server for the given forwarder state.
// An empty snapshotPath disables POST /v1/cache/snapshot.
func NewServer(listen string, stats StatsSource, cache *recordcache.Cache, snapshotPath string, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "dnsfwd",
		DisableStartupMessage: true,
	})
	app.Use(fiberzap.New(fiberzap.Config{Logger: logger}))

	s := &Server{
		app:          app,
		listen:       listen,
		stats:        stats,
		cache:        cache,
		snapshotPath: snapshotPath,
		logger:       logger,
	}
	s.Routes(app.Group("/v1"))
	return s
}

// Routes sets up the /v1 endpoints.
func (s *Server) Routes(v1 fiber.Router) {
	v1.Get("/stats", s.GetStats)
	v1.Get("/cache", s.GetCache)
	v1.Delete("/cache", s.FlushCache)
	v1.Post("/cache/snapshot", s.SaveSnapshot)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves the API until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("listen", s.listen))
	return s.app.Listen(s.listen)
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) cacheInfo() CacheInfo {
	return CacheInfo{
		Buckets:      s.cache.Buckets(),
		Records:      s.cache.Len(),
		SnapshotPath: s.snapshotPath,
	}
}

// GetStats returns query counters and cache sizes.
func (s *Server) GetStats(c *fiber.Ctx) error {
	stats := s.stats.Stats()
	return c.JSON(&StatsResponse{
		Server:   stats,
		HitRatio: stats.HitRatio(),
		Cache:    s.cacheInfo(),
	})
}

// GetCache returns the cache sizes.
func (s *Server) GetCache(c *fiber.Ctx) error {
	info := s.cacheInfo()
	return c.JSON(&info)
}

// FlushCache drops every cached record.
func (s *Server) FlushCache(c *fiber.Ctx) error {
	s.cache.Flush()
	s.logger.Info("Flushed cache")
	return c.SendStatus(fiber.StatusNoContent)
}

// SaveSnapshot writes the cache snapshot now.
func (s *Server) SaveSnapshot(c *fiber.Ctx) error {
	if s.snapshotPath == "" {
		return c.Status(fiber.StatusConflict).JSON(&StandardError{Message: "cache persistence is disabled"})
	}
	if err := s.cache.SaveFile(s.snapshotPath); err != nil {
		s.logger.Warn("Failed to save cache snapshot",
			zap.String("path", s.snapshotPath),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(&StandardError{Message: err.Error()})
	}
	info := s.cacheInfo()
	return c.JSON(&info)
}
