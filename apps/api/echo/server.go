package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/catalog"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
)

type (
	// HTTPRecorder observes served requests.
	HTTPRecorder interface {
		HTTPRequest(method, path string, status int, d time.Duration)
	}

	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Catalog        *catalog.Catalog
		ReviewSvc      *review.Service
		UserSvc        *user.Service
		Validate       *validator.Validate
		Translator     ut.Translator
		Recorder       HTTPRecorder // optional
		DisableReqLogs bool
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		tokens   tokenIssuer
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		tokens:     newTokenIssuer(deps.Conf),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Debug = s.Conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{s.Conf.FrontendBaseURL},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{staleHeader, "Retry-After"},
	}))
	if s.Recorder != nil {
		s.app.Use(metricsMiddleware(s.Recorder))
	}

	s.app.GET("/", home)

	api := s.app.Group("/api")
	optional := authMiddleware(s.tokens, authOptional)
	required := authMiddleware(s.tokens, authRequired)
	refresh := authMiddleware(s.tokens, authRefresh)

	registerCatalogAPI(api, s.Catalog)
	registerUserAPI(api, s.UserSvc, s.Validate, s.tokens, authLimiter(s.Conf.Server.AuthRateLimit), required, refresh)
	registerReviewAPI(api, s.ReviewSvc, optional)
	registerAdminAPI(api, s.ReviewSvc, required, adminMiddleware(s.UserSvc))
}

// Start serves until the server is shut down. Failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Server.Host); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Course Review API!")
}
