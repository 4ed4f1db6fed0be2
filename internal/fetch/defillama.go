package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// DefaultCatalogURL is the public DeFiLlama yields API
const DefaultCatalogURL = "https://yields.llama.fi"

// Catalog lists the candidate pools. A failing source yields an empty list,
// never an error.
type Catalog interface {
	ListPools(ctx context.Context) []model.Pool
}

// DefiLlamaCatalog implements a client for the DeFiLlama yields API
type DefiLlamaCatalog struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewDefiLlamaCatalog creates a new DeFiLlama catalog client
func NewDefiLlamaCatalog(baseURL string) *DefiLlamaCatalog {
	if baseURL == "" {
		baseURL = DefaultCatalogURL
	}
	return &DefiLlamaCatalog{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newRetryClient(catalogRetry),
	}
}

// ListPools retrieves the pools from DeFiLlama; errors are logged and produce an empty list
func (c *DefiLlamaCatalog) ListPools(ctx context.Context) []model.Pool {
	pools, err := c.fetch(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{"source": "defillama", "error": err}).Warn("Catalog unavailable")
		return []model.Pool{}
	}
	return pools
}

func (c *DefiLlamaCatalog) fetch(ctx context.Context) ([]model.Pool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pools", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching pools from DeFiLlama: %s", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data from DeFiLlama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("DeFiLlama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Only the fields the engine reads; apyBase is null for reward-only pools
	var response struct {
		Data []struct {
			Pool    string   `json:"pool"`
			Project string   `json:"project"`
			Chain   string   `json:"chain"`
			TVLUsd  *float64 `json:"tvlUsd"`
			APYBase *float64 `json:"apyBase"`
			Symbol  string   `json:"symbol"`
			URL     string   `json:"url"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	pools := make([]model.Pool, 0, len(response.Data))
	for _, d := range response.Data {
		if d.Pool == "" {
			continue
		}
		pools = append(pools, model.Pool{
			ID:       d.Pool,
			Protocol: d.Project,
			Project:  d.Project,
			Chain:    d.Chain,
			Symbol:   d.Symbol,
			TVL:      d.TVLUsd,
			APY:      d.APYBase,
			URL:      d.URL,
		})
	}

	logrus.Debugf("Received %d pools from DeFiLlama", len(pools))
	return pools, nil
}
