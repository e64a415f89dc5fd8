// Package heartbeat pings monitoring endpoints with the outcome of a run.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/kebairia/dockdump/internal/config"
	"github.com/kebairia/dockdump/internal/logger"
)

// ErrNotify indicates that at least one heartbeat could not be delivered.
var ErrNotify = errors.New("heartbeat delivery failed")

// Option lets you override default settings on a Notifier.
type Option func(*Notifier)

// Notifier sends GET requests to the endpoints matching a run's outcome.
type Notifier struct {
	Success []string
	Failure []string
	Always  []string

	client *retryablehttp.Client
	log    logger.Logger
}

// New builds a Notifier from the heartbeat configuration.
func New(cfg config.HeartbeatConfig, log logger.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = retryablehttp.LeveledLogger(debugOnly{log})

	n := &Notifier{
		Success: cfg.Success,
		Failure: cfg.Failure,
		Always:  cfg.Always,
		client:  client,
		log:     log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// WithRetryWait overrides the backoff bounds between attempts.
func WithRetryWait(min, max time.Duration) Option {
	return func(n *Notifier) {
		n.client.RetryWaitMin = min
		n.client.RetryWaitMax = max
	}
}

// Targets returns the endpoints pinged for the given outcome.
func (n *Notifier) Targets(success bool) []string {
	urls := n.Failure
	if success {
		urls = n.Success
	}
	out := make([]string, 0, len(urls)+len(n.Always))
	out = append(out, urls...)
	return append(out, n.Always...)
}

// Notify pings every target for the outcome and reports failed deliveries.
// Every endpoint is attempted even if an earlier one failed.
func (n *Notifier) Notify(ctx context.Context, success bool) error {
	var errs *multierror.Error
	for _, url := range n.Targets(success) {
		if err := n.ping(ctx, url); err != nil {
			n.log.Error("heartbeat failed", "url", url, "error", err.Error())
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		n.log.Info("heartbeat sent", "url", url, "success", success)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotify, err)
	}
	return nil
}

func (n *Notifier) ping(ctx context.Context, url string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// debugOnly routes retryablehttp's chatter to debug level; final failures
// are reported by Notify itself.
type debugOnly struct{ log logger.Logger }

func (d debugOnly) Error(msg string, kv ...interface{}) { d.log.Debug(msg, kv...) }
func (d debugOnly) Warn(msg string, kv ...interface{})  { d.log.Debug(msg, kv...) }
func (d debugOnly) Info(msg string, kv ...interface{})  { d.log.Debug(msg, kv...) }
func (d debugOnly) Debug(msg string, kv ...interface{}) { d.log.Debug(msg, kv...) }
