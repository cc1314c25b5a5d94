// Package warehouse is a small client for the ClickHouse HTTP interface.
package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/fxdesk/dashboard-api/util/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnavailable is returned when the warehouse cannot be reached or reports
// itself unavailable, e.g. while an idle cloud service is waking up.
var ErrUnavailable = errors.New("warehouse unavailable")

// QueryError is a non-200 reply from the warehouse.
type QueryError struct {
	StatusCode int
	Message    string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("warehouse returned %d: %s", e.StatusCode, e.Message)
}

// Config describes one warehouse connection.
type Config struct {
	// Name labels logs and metrics, e.g. "default" or "prod".
	Name     string
	URL      string
	User     string
	Password string
	Database string

	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Column is one entry of the result metadata.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Statistics are the execution statistics reported with every result.
type Statistics struct {
	Elapsed   float64 `json:"elapsed"`
	RowsRead  int64   `json:"rows_read"`
	BytesRead int64   `json:"bytes_read"`
}

// Result is a decoded JSON format reply.
type Result struct {
	Meta       []Column                 `json:"meta"`
	Data       []map[string]interface{} `json:"data"`
	Rows       int64                    `json:"rows"`
	Statistics Statistics               `json:"statistics"`
}

// Client runs queries against one warehouse.
type Client struct {
	name     string
	base     url.URL
	user     string
	password string
	database string

	http *retryablehttp.Client
	log  *log.Logger
}

// New validates the configuration and builds a client.
func New(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("warehouse %q: no url configured", cfg.Name)
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("warehouse %q: bad url: %w", cfg.Name, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("warehouse %q: unsupported scheme %q", cfg.Name, base.Scheme)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log: logger.WithField("warehouse", cfg.Name)}

	return &Client{
		name:     cfg.Name,
		base:     *base,
		user:     cfg.User,
		password: cfg.Password,
		database: cfg.Database,
		http:     rc,
		log:      logger,
	}, nil
}

// Name is the configured connection name.
func (c *Client) Name() string {
	return c.name
}

// checkRetry retries transport errors and the gateway statuses returned
// while the service resumes. Query errors are never retried.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return isUnavailableStatus(resp.StatusCode), nil
}

func isUnavailableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) endpoint(params map[string]interface{}) string {
	u := c.base
	q := u.Query()
	q.Set("default_format", "JSON")
	q.Set("output_format_json_quote_64bit_integers", "0")
	q.Set("output_format_json_quote_decimals", "0")
	if c.database != "" {
		q.Set("database", c.database)
	}
	for name, v := range params {
		q.Set("param_"+name, FormatParam(v))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Query runs sql with the given named parameters. Parameters are referenced
// in the SQL as {name:Type}.
func (c *Client) Query(ctx context.Context, sql string, params map[string]interface{}) (*Result, error) {
	start := time.Now()
	res, err := c.query(ctx, sql, params)
	metrics.WarehouseQueryTimeSeconds.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WarehouseQueryErrors.WithLabelValues(c.name).Inc()
		return nil, err
	}
	return res, nil
}

func (c *Client) query(ctx context.Context, sql string, params map[string]interface{}) (*Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(params), []byte(sql))
	if err != nil {
		return nil, fmt.Errorf("building warehouse request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.user != "" {
		req.Header.Set("X-ClickHouse-User", c.user)
	}
	if c.password != "" {
		req.Header.Set("X-ClickHouse-Key", c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp == nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading reply: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		qerr := &QueryError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if isUnavailableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, qerr)
		}
		return nil, qerr
	}

	var result Result
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding warehouse reply: %w", err)
	}
	if result.Data == nil {
		result.Data = []map[string]interface{}{}
	}
	return &result, nil
}

// Ping checks the warehouse answers a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, "SELECT 1", nil)
	return err
}
