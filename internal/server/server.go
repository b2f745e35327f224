package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/constants"
	"github.com/loykin/funcprov/internal/deeplink"
	"github.com/loykin/funcprov/internal/devcontainer"
	"github.com/loykin/funcprov/internal/download"
	"github.com/loykin/funcprov/internal/provision"
	"github.com/loykin/funcprov/internal/store"
)

// Runner provisions a deep link. *provision.Provisioner implements it.
type Runner interface {
	Run(ctx context.Context, req provision.Request) (*provision.Result, error)
}

// RunLister lists recorded runs. *store.Store implements it.
type RunLister interface {
	ListRuns(ctx context.Context, opts store.ListOptions) ([]store.Run, error)
}

// Options configures the deep-link listener.
type Options struct {
	Addr   string
	Runner Runner
	// Runs enables GET /runs when set.
	Runs RunLister
	// JWT protects /provision and /runs when non-nil. Only authenticated callers may choose the
	// target folder; otherwise the provisioner's default folder is used.
	JWT             *VerifyConfig
	ShutdownTimeout time.Duration
	Logger          *common.Logger
}

// Server is the local HTTP entry point for deep links.
type Server struct {
	addr            string
	engine          *gin.Engine
	runner          Runner
	runs            RunLister
	trustFolder     bool
	shutdownTimeout time.Duration
	logger          *common.Logger
}

// New builds the listener routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	addr := opts.Addr
	if addr == "" {
		addr = constants.DefaultListenAddr
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	s := &Server{
		addr:            addr,
		engine:          gin.New(),
		runner:          opts.Runner,
		runs:            opts.Runs,
		trustFolder:     opts.JWT != nil,
		shutdownTimeout: shutdown,
		logger:          logger.WithComponent("server"),
	}
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.engine.GET("/healthz", s.healthz)

	api := s.engine.Group("/")
	api.Use(rejectBrowserRequests())
	if opts.JWT != nil {
		api.Use(JWTMiddleware(*opts.JWT))
	}
	api.POST("/provision", s.provision)
	if s.runs != nil {
		api.GET("/runs", s.listRuns)
	}
	return s
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening for deep links", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down listener")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithRequest(c.Request.Method, c.Request.URL.Path).Debug("request handled",
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// rejectBrowserRequests refuses requests a web page could have sent: anything carrying an Origin
// header or a cross-site Sec-Fetch-Site.
func rejectBrowserRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Origin") != "" {
			abort(c, http.StatusForbidden, "cross-origin requests are not accepted")
			return
		}
		switch c.GetHeader("Sec-Fetch-Site") {
		case "", "none", "same-origin":
		default:
			abort(c, http.StatusForbidden, "cross-site requests are not accepted")
			return
		}
		c.Next()
	}
}

func (s *Server) provision(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "step": string(provision.StepParse)})
		return
	}
	link, err := deeplink.FromValues(c.Request.Form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "step": string(provision.StepParse)})
		return
	}
	if link.Folder != "" && !s.trustFolder {
		c.JSON(http.StatusForbidden, gin.H{"error": "folder requires an authenticated caller", "step": string(provision.StepParse)})
		return
	}
	// the Azure token always comes from the configured source, never from the caller
	res, err := s.runner.Run(c.Request.Context(), provision.Request{Link: link, Folder: link.Folder})
	if err != nil {
		body := gin.H{"error": err.Error(), "step": string(provision.FailedStep(err))}
		if res != nil {
			body["run_id"] = res.RunID
			body["project_path"] = res.ProjectPath
		}
		c.JSON(statusFor(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       res.RunID,
		"app":          res.AppName,
		"project_path": res.ProjectPath,
		"files":        res.Files,
		"devcontainer": res.DevcontainerPath,
		"duration_ms":  res.Duration.Milliseconds(),
	})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := constants.DefaultProvisionLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), store.ListOptions{
		AppName: c.Query("app"),
		Status:  c.Query("status"),
		Limit:   limit,
	})
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		out = append(out, gin.H{
			"run_id":       r.RunID,
			"app":          r.AppName,
			"container":    r.Container,
			"status":       r.Status,
			"step":         r.Step,
			"error":        r.Error,
			"project_path": r.ProjectPath,
			"started_at":   r.StartedAt,
			"finished_at":  r.FinishedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, deeplink.ErrMissingParam), errors.Is(err, deeplink.ErrInvalidParam), errors.Is(err, provision.ErrNoFolder):
		return http.StatusBadRequest
	case errors.Is(err, devcontainer.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, download.ErrStatus):
		return http.StatusBadGateway
	}
	switch provision.FailedStep(err) {
	case provision.StepAuth, provision.StepResolve, provision.StepDownload:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
