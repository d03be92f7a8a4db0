// Package server exposes the converter over HTTP: upload a video, follow its
// progress as JSON or over a websocket, and scrape Prometheus metrics.
package server

import (
	"context"
	"embed"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/pipeline"
	"github.com/heyjunin/HLSdrop/pkg/progress"
)

//go:embed web/index.html
var webFS embed.FS

// Converter is the part of pipeline.Converter the server drives.
type Converter interface {
	Start(ctx context.Context, src pipeline.Source) (string, <-chan pipeline.Outcome, error)
	Busy() bool
}

// StateFeed provides the current conversion state and change notifications.
type StateFeed interface {
	Snapshot() progress.State
	Subscribe() (<-chan progress.State, func())
}

// Options configures the HTTP server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// MaxUploadBytes caps the request body of an upload.
	MaxUploadBytes int64
	// UploadDir holds received files until their conversion finishes.
	UploadDir       string
	ShutdownTimeout time.Duration
}

// Server serves the conversion API.
type Server struct {
	converter Converter
	feed      StateFeed
	options   Options
	logger    logger.Logger
	upgrader  websocket.Upgrader
	handler   http.Handler

	// conversions outlive the request that started them
	baseCtx    context.Context
	cancelBase context.CancelFunc
	inflight   sync.WaitGroup
}

// New builds the router.
func New(converter Converter, feed StateFeed, options Options, log logger.Logger) *Server {
	if options.Addr == "" {
		options.Addr = ":8080"
	}
	if len(options.AllowedOrigins) == 0 {
		options.AllowedOrigins = []string{"*"}
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewLogger()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		converter:  converter,
		feed:       feed,
		options:    options,
		logger:     log,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), metricsMiddleware())

	router.GET("/", s.index)
	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/conversions")
	{
		api.POST("", s.createConversion)
		api.GET("/current", s.currentConversion)
		api.GET("/events", s.conversionEvents)
	}

	s.handler = cors.New(cors.Options{
		AllowedOrigins: options.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}).Handler(router)

	return s
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on Options.Addr until ctx is canceled, then shuts down
// gracefully and cancels any running conversion.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.options.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "server", map[string]interface{}{
			"addr": s.options.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.cancelBase()
		if err != nil {
			return errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrListenFailed), errors.ErrListenFailed)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", "server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	s.cancelBase()
	s.inflight.Wait()
	return err
}

// Close cancels running conversions and waits for them to finish.
func (s *Server) Close() {
	s.cancelBase()
	s.inflight.Wait()
}

func (s *Server) index(c *gin.Context) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"busy":   s.converter.Busy(),
	})
}

func (s *Server) currentConversion(c *gin.Context) {
	c.JSON(http.StatusOK, s.feed.Snapshot())
}

func (s *Server) createConversion(c *gin.Context) {
	if s.converter.Busy() {
		s.abortWithError(c, http.StatusConflict, busy())
		return
	}

	if s.options.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.options.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.abortWithError(c, http.StatusBadRequest, errors.Wrap(err, errors.ValidationError, "Multipart field \"file\" is required", errors.ErrInvalidOption))
		return
	}

	path, err := s.spool(header.Filename, func() (io.ReadCloser, error) { return header.Open() })
	if err != nil {
		s.abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	src := pipeline.Source{
		Name: filepath.Base(header.Filename),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}

	id, done, err := s.converter.Start(s.baseCtx, src)
	if err != nil {
		os.Remove(path)
		status := http.StatusInternalServerError
		if se, ok := errors.As(err); ok && se.Code == errors.ErrBusy {
			status = http.StatusConflict
		}
		s.abortWithError(c, status, err)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer os.Remove(path)
		out := <-done
		fields := map[string]interface{}{"id": id}
		if out.Err != nil {
			fields["error"] = out.Err.Error()
			s.logger.Warn("Conversion finished with error", "server", fields)
			return
		}
		fields["url"] = out.Result.PlaylistURL
		s.logger.Info("Conversion finished", "server", fields)
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// spool copies an upload to UploadDir so it outlives the request.
func (s *Server) spool(name string, open func() (io.ReadCloser, error)) (string, error) {
	in, err := open()
	if err != nil {
		return "", errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrSourceUnreadable), errors.ErrSourceUnreadable)
	}
	defer in.Close()

	if s.options.UploadDir != "" {
		if err := os.MkdirAll(s.options.UploadDir, 0755); err != nil {
			return "", errors.Wrap(err, errors.SystemError, "Failed to create upload directory", errors.ErrFileSystem)
		}
	}
	out, err := os.CreateTemp(s.options.UploadDir, "hlsdrop-upload-*"+filepath.Ext(name))
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create upload file", errors.ErrFileSystem)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrSourceUnreadable), errors.ErrSourceUnreadable)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", errors.Wrap(err, errors.SystemError, "Failed to write upload file", errors.ErrFileSystem)
	}
	return out.Name(), nil
}

func (s *Server) abortWithError(c *gin.Context, status int, err error) {
	se := errors.Normalize(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error": errors.Describe(se),
		"type":  se.Type,
		"code":  se.Code,
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.options.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func busy() error {
	return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrBusy), "", errors.ErrBusy)
}
