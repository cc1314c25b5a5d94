// Package analytics serves the warehouse backed reports: the client PnL
// analysis and the IB group report.
package analytics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/algorand/go-deadlock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fxdesk/dashboard-api/cache"
	"github.com/fxdesk/dashboard-api/util/metrics"
	"github.com/fxdesk/dashboard-api/warehouse"
)

// ErrInvalidInput is returned for requests that fail validation.
var ErrInvalidInput = errors.New("invalid input")

// Warehouse runs SQL with named parameters.
type Warehouse interface {
	Query(ctx context.Context, sql string, params map[string]interface{}) (*warehouse.Result, error)
}

const (
	pnlCacheTTL      = 30 * time.Minute
	ibReportCacheTTL = 10 * time.Minute
	ibGroupsTTL      = 7 * 24 * time.Hour
)

// Options configure a Service.
type Options struct {
	// QueryTimeout bounds a coalesced warehouse query, which runs on behalf
	// of every waiting caller. Disabled when 0.
	QueryTimeout time.Duration
}

// Service implements the warehouse reports.
type Service struct {
	// analytics is the default warehouse connection, prod the back-office replica.
	analytics    Warehouse
	prod         Warehouse
	cache        cache.Cache
	queryTimeout time.Duration
	log          *log.Logger

	pnlFlight    singleflight.Group
	reportFlight singleflight.Group
	returnFlight singleflight.Group

	groupsMu     deadlock.Mutex
	groups       *IBGroupList
	groupsExpiry time.Time

	now func() time.Time
}

// New builds the service. A nil cache disables result caching.
func New(analytics, prod Warehouse, c cache.Cache, opts Options, logger *log.Logger) *Service {
	if c == nil {
		c = cache.Noop()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		analytics:    analytics,
		prod:         prod,
		cache:        c,
		queryTimeout: opts.QueryTimeout,
		log:          logger,
		now:          time.Now,
	}
}

// coalesce runs fn once for all concurrent callers of the same key. fn is
// detached from the cancellation of the caller that started it and bounded
// by the query timeout instead. Every caller stops waiting when its own
// context is done.
func (s *Service) coalesce(ctx context.Context, g *singleflight.Group, report, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := g.DoChan(key, func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		if s.queryTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.queryTimeout)
			defer cancel()
		}
		return fn(runCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedRequests.WithLabelValues(report).Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks that the warehouse connections answer.
func (s *Service) Ping(ctx context.Context) error {
	conns := []Warehouse{s.analytics}
	if s.prod != s.analytics {
		conns = append(conns, s.prod)
	}
	for _, w := range conns {
		p, ok := w.(pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Statistics describe how a result was produced.
type Statistics struct {
	Elapsed   float64 `json:"elapsed"`
	RowsRead  int64   `json:"rows_read"`
	BytesRead int64   `json:"bytes_read"`
	FromCache bool    `json:"from_cache"`
}

func statisticsOf(s warehouse.Statistics) Statistics {
	return Statistics{Elapsed: s.Elapsed, RowsRead: s.RowsRead, BytesRead: s.BytesRead}
}

// cacheGet looks key up and records the hit or miss. Cache failures are
// logged and treated as a miss.
func (s *Service) cacheGet(ctx context.Context, report, key string, out interface{}) bool {
	ok, err := cache.GetJSON(ctx, s.cache, key, out)
	if err != nil {
		s.log.WithError(err).WithField("report", report).Warn("cache read failed")
	}
	result := metrics.CacheMiss
	if ok {
		result = metrics.CacheHit
	}
	metrics.CacheRequests.WithLabelValues(report, result).Inc()
	return ok
}

func (s *Service) cacheSet(ctx context.Context, report, key string, v interface{}, ttl time.Duration) {
	if err := cache.SetJSON(ctx, s.cache, key, v, ttl); err != nil {
		s.log.WithError(err).WithField("report", report).Warn("cache write failed")
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextDayStart(t time.Time) time.Time {
	return dayStart(t).AddDate(0, 0, 1)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// asFloat converts a decoded JSON value to a number, nil and garbage are 0.
func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	}
	return ""
}
