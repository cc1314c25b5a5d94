package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	echo_contrib "github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/api/middlewares"
	"github.com/fxdesk/dashboard-api/idb"
)

// ExtraOptions are options which change the behavior or the HTTP server.
type ExtraOptions struct {
	// MetricsEndpoint turns on the /metrics endpoint for prometheus metrics.
	MetricsEndpoint bool

	// MetricsEndpointVerbose generates separate histograms based on query parameters on the /metrics endpoint.
	MetricsEndpointVerbose bool

	// Timeout is the maximum time a handler may spend on its data source.
	// No timeout when zero.
	Timeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// CORSOrigins are the allowed origins, all origins when empty.
	CORSOrigins []string

	// DisabledMapConfig disables endpoints, parameters and filter fields.
	DisabledMapConfig *DisabledMap
}

// Backends are the data sources behind the handlers. Analytics and
// Backoffice may be nil.
type Backends struct {
	DB idb.ReportDb
	// DBAvailable is closed once the reporting database has been reached.
	DBAvailable <-chan struct{}

	Analytics  AnalyticsService
	Backoffice BackofficeService
}

// NewServer builds the echo instance serving the dashboard API.
func NewServer(backends Backends, log *log.Logger, options ExtraOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = jsonSerializer{}
	e.HTTPErrorHandler = errorHandler(log)

	if options.MetricsEndpoint {
		p := echo_contrib.NewPrometheus("dashboard", nil, nil)
		if options.MetricsEndpointVerbose {
			p.RequestCounterURLLabelMappingFunc = middlewares.PrometheusPathMapperVerbose
		} else {
			p.RequestCounterURLLabelMappingFunc = middlewares.PrometheusPathMapper404Sink
		}
		// This call installs the prometheus metrics collection middleware and
		// the "/metrics" handler.
		p.Use(e)
	}

	e.Use(middlewares.MakeTraceID())
	e.Use(middlewares.MakeLogger(log))
	e.Use(middlewares.MakeCORS(options.CORSOrigins))

	api := ServerImplementation{
		db:             backends.DB,
		analytics:      backends.Analytics,
		backoffice:     backends.Backoffice,
		timeout:        options.Timeout,
		log:            log,
		disabledParams: options.DisabledMapConfig,
	}

	reporting := middlewares.MakeAvailabilityMiddleware("reporting database", backends.DBAvailable)

	e.GET("/health", api.MakeHealthCheck)

	v1 := e.Group("/api/v1")
	v1.GET("/client-pnl/summary/paginated", api.SearchClientSummaries, reporting)
	v1.GET("/client-pnl/refresh-status", api.LookupRefreshStatus, reporting)
	v1.GET("/client-pnl/:client_id/accounts", api.LookupClientAccounts, reporting)
	v1.GET("/pnl/summary", api.SearchPnlSummary, reporting)
	v1.GET("/zipcode/distribution", api.LookupZipcodeDistribution, reporting)
	v1.GET("/zipcode/changes", api.SearchZipcodeChanges, reporting)
	v1.GET("/zipcode/exclusions", api.LookupZipcodeExclusions, reporting)
	v1.GET("/zipcode/change-frequency", api.SearchZipcodeChangeFrequency, reporting)

	v1.GET("/client-pnl-analysis/query", api.SearchPnlAnalysis)
	v1.POST("/client-pnl-analysis/query", api.QueryPnlAnalysis)
	v1.GET("/ib-report/groups", api.LookupIBGroups)
	v1.POST("/ib-report/query", api.QueryIBReport)
	v1.GET("/client-return-rate/query", api.SearchClientReturnRate)

	v1.POST("/ib-data/query", api.QueryIBData)
	v1.GET("/ib-data/last-run", api.LookupIBDataLastRun)
	v1.GET("/open-positions/today", api.LookupOpenPositions)
	v1.POST("/audience/preview", api.PreviewAudience)
	v1.POST("/trading/analysis", api.QueryTradingAnalysis)
	v1.POST("/trading/hourly-details", api.QueryHourlyDetails)

	return e
}

// errorHandler writes errors returned by middleware and the router, such as
// unknown routes and unavailable data sources, in the ErrorResponse form.
func errorHandler(log *log.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		}

		var werr error
		if ctx.Request().Method == http.MethodHead {
			werr = ctx.NoContent(code)
		} else {
			werr = ctx.JSON(code, ErrorResponse{Error: message})
		}
		if werr != nil {
			log.WithError(werr).Warn("failed to write error response")
		}
	}
}

// Serve starts an http server for the dashboard API. This call blocks.
func Serve(ctx context.Context, serveAddr string, backends Backends, log *log.Logger, options ExtraOptions) {
	e := NewServer(backends, log, options)

	getctx := func(l net.Listener) context.Context {
		return ctx
	}
	s := &http.Server{
		Addr:           serveAddr,
		ReadTimeout:    options.ReadTimeout,
		WriteTimeout:   options.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
		BaseContext:    getctx,
	}

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	// Allow one second for graceful shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
