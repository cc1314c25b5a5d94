// Package backoffice serves the reports read straight from the trading
// back-office MySQL database: IB wallet metrics, open positions and
// audience previews.
package backoffice

import (
	"context"
	"errors"
	"time"

	"github.com/algorand/go-deadlock"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidInput is returned for requests that fail validation.
var ErrInvalidInput = errors.New("invalid input")

// DefaultWorkers is the number of IB ids queried concurrently.
const DefaultWorkers = 4

// Options configure a Service.
type Options struct {
	// DataDir holds the IB aggregation marker file.
	DataDir string
	// Workers bounds the concurrent IB queries, DefaultWorkers when 0.
	Workers int
}

// Service implements the back-office reports on top of a Store.
type Service struct {
	store   Store
	dataDir string
	workers int
	log     *log.Logger

	// heavy serializes IB aggregations process wide.
	heavy deadlock.Mutex

	now func() time.Time
}

// New builds the service.
func New(store Store, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Service{
		store:   store,
		dataDir: opts.DataDir,
		workers: workers,
		log:     logger,
		now:     time.Now,
	}
}

// Ping checks that the back-office database answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
