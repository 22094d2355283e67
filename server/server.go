// Package server exposes repair and validation over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/config"
	"github.com/wudi/pdfremedy/directive"
	"github.com/wudi/pdfremedy/observability"
	"github.com/wudi/pdfremedy/parser"
	"github.com/wudi/pdfremedy/pipeline"
)

// RepairResponse is the body of a successful repair request.
type RepairResponse struct {
	RunID    string                 `json:"runId"`
	Status   pipeline.Status        `json:"status"`
	State    pipeline.State         `json:"state"`
	Report   *compliance.Comparison `json:"report,omitempty"`
	Log      pipeline.RepairLog     `json:"log"`
	Document []byte                 `json:"document"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type Server struct {
	engine    *pipeline.Engine
	validator compliance.Validator
	cfg       config.ServerConfig
	log       observability.Logger
	router    *gin.Engine
}

func New(engine *pipeline.Engine, validator compliance.Validator, cfg config.ServerConfig, log observability.Logger) *Server {
	s := &Server{
		engine:    engine,
		validator: validator,
		cfg:       cfg,
		log:       observability.OrNop(log).Named("server"),
		router:    gin.New(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler with every route and middleware.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), s.requestLog())
	if c, ok := corsConfig(s.cfg.CORSOrigins); ok {
		r.Use(cors.New(c))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	if s.cfg.RateLimit > 0 {
		v1.Use(rateLimit(rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)))
	}
	v1.Use(s.bodyLimit())
	v1.POST("/repair", s.repair)
	v1.POST("/validate", s.validate)
}

func corsConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c, true
		}
	}
	c.AllowOrigins = origins
	return c, true
}

func rateLimit(l *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
			return
		}
		c.Next()
	}
}

func (s *Server) bodyLimit() gin.HandlerFunc {
	max := int64(s.cfg.MaxUploadMB) << 20
	return func(c *gin.Context) {
		if max > 0 {
			if c.Request.ContentLength > max {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "upload too large"})
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.FullPath()),
			observability.Int("status", c.Writer.Status()),
			observability.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.log.Error(msg, observability.Error("error", err))
	}
	c.AbortWithStatusJSON(status, resp)
}

// upload reads a multipart file field. A body over the limit maps to 413.
func (s *Server) upload(c *gin.Context, field string, required bool) ([]byte, string, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.fail(c, http.StatusRequestEntityTooLarge, "upload too large", err)
			return nil, "", false
		case errors.Is(err, http.ErrMissingFile) && !required:
			return nil, "", true
		}
		s.fail(c, http.StatusBadRequest, "missing "+field+" upload", err)
		return nil, "", false
	}
	data, err := readFile(fh)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "unreadable "+field+" upload", err)
		return nil, "", false
	}
	return data, fh.Filename, true
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) repair(c *gin.Context) {
	data, name, ok := s.upload(c, "file", true)
	if !ok {
		return
	}
	raw, _, ok := s.upload(c, "directives", false)
	if !ok {
		return
	}
	if raw == nil {
		if v := c.PostForm("directives"); v != "" {
			raw = []byte(v)
		}
	}
	var ds []directive.Directive
	if raw != nil {
		var err error
		if ds, err = directive.DecodeBytes(raw); err != nil {
			s.fail(c, http.StatusBadRequest, "invalid directives", err)
			return
		}
	}

	res, err := s.engine.Run(c.Request.Context(), pipeline.Input{Name: name, Data: data, Directives: ds})
	if err != nil {
		if errors.Is(err, parser.ErrFatalParse) {
			s.fail(c, http.StatusUnprocessableEntity, "document cannot be parsed", err)
			return
		}
		s.fail(c, http.StatusInternalServerError, "repair failed", err)
		return
	}
	c.JSON(http.StatusOK, RepairResponse{
		RunID:    res.RunID,
		Status:   res.Status,
		State:    res.State,
		Report:   res.Report,
		Log:      res.Log,
		Document: res.Output,
	})
}

func (s *Server) validate(c *gin.Context) {
	data, _, ok := s.upload(c, "file", true)
	if !ok {
		return
	}
	report, err := s.validator.Validate(c.Request.Context(), data)
	if err != nil {
		if errors.Is(err, parser.ErrFatalParse) {
			s.fail(c, http.StatusUnprocessableEntity, "document cannot be parsed", err)
			return
		}
		s.fail(c, http.StatusInternalServerError, "validation failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", observability.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	return <-errCh
}
