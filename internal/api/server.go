package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"StockScreener/internal/collector"
	"StockScreener/internal/logger"
	"StockScreener/internal/scanner"
	"StockScreener/internal/universe"
)

// Server exposes screens, history and back-tracking over HTTP.
type Server struct {
	Addr      string
	Scanner   *scanner.Scanner
	Universe  universe.Provider
	Collector *collector.Collector
	// Lookback is the minimum number of candles fetched per symbol.
	Lookback int

	httpServer *http.Server
	log        *logrus.Entry
}

// NewServer wires a server; call Run to start listening.
func NewServer(addr string, sc *scanner.Scanner, uni universe.Provider, col *collector.Collector, lookback int) *Server {
	return &Server{
		Addr:      addr,
		Scanner:   sc,
		Universe:  uni,
		Collector: col,
		Lookback:  lookback,
		log:       logger.Component("api"),
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.Addr).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	api.GET("/health", s.health)
	api.GET("/large-caps", s.largeCaps)
	api.GET("/get-under-ema", s.screen("under-ema"))
	api.GET("/get-ema-20-50-100-under-200", s.screen("ema-20-50-100-under-200"))
	api.GET("/rsi-less-than", s.screen("rsi-less-than"))
	api.GET("/rsi-more-than", s.screen("rsi-more-than"))
	api.GET("/gap-up-gap-down", s.screen("gap-up-gap-down"))
	api.GET("/get-stock-history", s.stockHistory)
	api.GET("/back-track", s.backTrack)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
		}).Info("request")
	}
}

// fail reports every error as 500 with its message.
func (s *Server) fail(c *gin.Context, err error) {
	s.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
