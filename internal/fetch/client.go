// Package fetch provides HTTP clients for the pool catalog and the risk fact store.
package fetch

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// RetryOptions tunes the retrying HTTP client
type RetryOptions struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// catalogRetry is used for bulk catalog listings
var catalogRetry = RetryOptions{
	RetryMax:     3,
	RetryWaitMin: 500 * time.Millisecond,
	RetryWaitMax: 3 * time.Second,
}

// factRetry keeps fact lookups inside their per-call timeout
var factRetry = RetryOptions{
	RetryMax:     1,
	RetryWaitMin: 50 * time.Millisecond,
	RetryWaitMax: 200 * time.Millisecond,
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient(opts RetryOptions) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = opts.RetryMax
	c.RetryWaitMin = opts.RetryWaitMin
	c.RetryWaitMax = opts.RetryWaitMax
	c.Logger = leveledLogger{logrus.StandardLogger()}
	// hand the last response back so callers can report its status
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// leveledLogger routes retryablehttp logs through logrus at debug. Callers
// decide how loudly a failed request is reported.
type leveledLogger struct {
	l *logrus.Logger
}

func (l leveledLogger) fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{"component": "http"}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	l.l.WithFields(l.fields(kv)).Debug(msg)
}

func (l leveledLogger) Info(msg string, kv ...interface{}) {
	l.l.WithFields(l.fields(kv)).Debug(msg)
}

func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	l.l.WithFields(l.fields(kv)).Debug(msg)
}

func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	l.l.WithFields(l.fields(kv)).Debug(msg)
}
