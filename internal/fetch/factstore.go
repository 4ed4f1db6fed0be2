package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/truptisatsangi/robo-defi-advisor/internal/circuitbreaker"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// DefaultFactTimeout bounds a single query or assertion
const DefaultFactTimeout = 3 * time.Second

// FactGateway is the risk knowledge store. Implementations never return
// errors: any failure is reported as an unavailable fact or a false assertion.
type FactGateway interface {
	Query(ctx context.Context, fact string) model.Fact
	Assert(ctx context.Context, fact string) bool
}

// FactStoreOptions configures a FactStoreClient
type FactStoreOptions struct {
	BaseURL string
	Timeout time.Duration

	// Breaker is optional; when set, repeated transport failures short-circuit calls
	Breaker *circuitbreaker.CircuitBreaker

	// OnUnavailable is called whenever a query could not be answered
	OnUnavailable func(reason string)
}

// FactStoreClient talks to the fact store over HTTP:
// POST {base}/query {"fact": ...} and POST {base}/assert {"fact": ...}.
type FactStoreClient struct {
	baseURL       string
	httpClient    *retryablehttp.Client
	timeout       time.Duration
	breaker       *circuitbreaker.CircuitBreaker
	onUnavailable func(reason string)
}

// NewFactStoreClient creates a fact store client
func NewFactStoreClient(opts FactStoreOptions) *FactStoreClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFactTimeout
	}
	return &FactStoreClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		httpClient:    newRetryClient(factRetry),
		timeout:       timeout,
		breaker:       opts.Breaker,
		onUnavailable: opts.OnUnavailable,
	}
}

var errStatus = errors.New("unexpected status")

// Query asks the store for one fact. The returned fact is unavailable on
// timeout, transport error, non-2xx status, malformed body or open circuit.
func (c *FactStoreClient) Query(ctx context.Context, fact string) model.Fact {
	body, err := c.post(ctx, "/query", fact)
	if err != nil {
		c.unavailable(fact, err)
		return model.UnknownFact()
	}
	if !gjson.ValidBytes(body) {
		c.unavailable(fact, fmt.Errorf("malformed response: %q", truncate(body)))
		return model.UnknownFact()
	}

	confidence := gjson.GetBytes(body, "confidence").Float()
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return model.Fact{
		Result:     gjson.GetBytes(body, "result"),
		Confidence: confidence,
		Available:  true,
	}
}

// Assert writes a fact to the store and reports whether it was accepted
func (c *FactStoreClient) Assert(ctx context.Context, fact string) bool {
	body, err := c.post(ctx, "/assert", fact)
	if err != nil {
		logrus.WithFields(logrus.Fields{"fact": fact, "error": err}).Debug("Fact assertion failed")
		return false
	}
	return gjson.GetBytes(body, "success").Bool()
}

func (c *FactStoreClient) post(parent context.Context, path, fact string) ([]byte, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(map[string]string{"fact": fact})
	if err != nil {
		return nil, fmt.Errorf("error encoding fact: %w", err)
	}

	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(parent, err)
		return nil, fmt.Errorf("error reaching fact store: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(parent, err)
		return nil, fmt.Errorf("error reading fact store response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w %d from fact store", errStatus, resp.StatusCode)
		c.recordFailure(parent, err)
		return nil, err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	return body, nil
}

// recordFailure counts the failure against the breaker unless the caller gave up first
func (c *FactStoreClient) recordFailure(parent context.Context, err error) {
	if c.breaker == nil || parent.Err() != nil {
		return
	}
	c.breaker.RecordFailure(err)
}

func (c *FactStoreClient) unavailable(fact string, err error) {
	logrus.WithFields(logrus.Fields{"fact": fact, "error": err}).Debug("Fact unavailable")
	if c.onUnavailable == nil {
		return
	}
	reason := "transport"
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		reason = "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(err, errStatus):
		reason = "status"
	}
	c.onUnavailable(reason)
}

func truncate(b []byte) string {
	const max = 128
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
