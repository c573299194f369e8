// Package httpclient builds the outbound HTTP clients used for model providers.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Options configures NewRetrying.
type Options struct {
	// RetryMax is the number of retries after the first attempt; 0 disables retries.
	RetryMax int
	// Timeout bounds a single attempt. Zero leaves the bound to the request context.
	Timeout time.Duration
	// Logger receives retry diagnostics. Nil disables retryablehttp logging.
	Logger retryablehttp.LeveledLogger
}

// NewRetrying returns a standard *http.Client backed by retryablehttp.
// Connection errors, 429 and 5xx responses are retried with exponential backoff; the request
// context still bounds the total time spent.
func NewRetrying(opts Options) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(opts.RetryMax, 0)
	retryClient.HTTPClient.Timeout = opts.Timeout

	retryClient.Logger = opts.Logger

	if t, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
		t.MaxIdleConnsPerHost = 20
	}

	return retryClient.StandardClient()
}
