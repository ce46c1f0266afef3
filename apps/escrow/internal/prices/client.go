package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/model"
)

const cacheKeyPrefix = "price:ethereum:"

// Client fetches USD token prices from the DeFiLlama current-prices API and
// caches them in Redis for about an hour. The cache is best effort: a nil
// or unreachable Redis degrades to direct fetches, never to errors.
type Client struct {
	apiURL     string
	httpClient *http.Client
	redis      *redis.Client
	ttl        time.Duration
	logger     *zap.Logger
}

func NewClient(apiURL string, redisClient *redis.Client, logger *zap.Logger) *Client {
	return &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		redis:      redisClient,
		ttl:        constants.PriceCacheTTLSeconds * time.Second,
		logger:     logger,
	}
}

// Prices returns prices keyed by lowercase token address. Addresses the feed
// does not know are simply absent from the result.
func (c *Client) Prices(ctx context.Context, tokenAddresses []string) (map[string]model.TokenPrice, error) {
	result := make(map[string]model.TokenPrice)

	unique := dedupeLower(tokenAddresses)
	if len(unique) == 0 {
		return result, nil
	}

	misses := make([]string, 0, len(unique))
	for _, address := range unique {
		if cached, ok := c.cacheGet(ctx, address); ok {
			result[address] = cached
			continue
		}
		misses = append(misses, address)
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.fetch(ctx, misses)
	if err != nil {
		// Partial results from cache are better than nothing, but an empty
		// result with a failed fetch should surface as retryable.
		if len(result) > 0 {
			c.logger.Warn("Price fetch failed, serving cached subset", zap.Error(err))
			return result, nil
		}
		return nil, err
	}

	for address, price := range fetched {
		result[address] = price
		c.cacheSet(ctx, address, price)
	}

	return result, nil
}

// Price returns the price for a single token, or nil when unknown.
func (c *Client) Price(ctx context.Context, tokenAddress string) (*model.TokenPrice, error) {
	prices, err := c.Prices(ctx, []string{tokenAddress})
	if err != nil {
		return nil, err
	}
	if price, ok := prices[strings.ToLower(tokenAddress)]; ok {
		return &price, nil
	}
	return nil, nil
}

func (c *Client) fetch(ctx context.Context, addresses []string) (map[string]model.TokenPrice, error) {
	url := constants.PriceAPIURL(c.apiURL, addresses)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from price API", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read price response: %w", err)
	}

	return parsePriceResponse(body)
}

type llamaResponse struct {
	Coins map[string]struct {
		Price      float64 `json:"price"`
		Confidence float64 `json:"confidence"`
		Timestamp  int64   `json:"timestamp"`
	} `json:"coins"`
}

// parsePriceResponse maps the feed's "<chain>:<address>" keys to lowercase
// addresses.
func parsePriceResponse(body []byte) (map[string]model.TokenPrice, error) {
	var decoded llamaResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	prices := make(map[string]model.TokenPrice, len(decoded.Coins))
	for key, value := range decoded.Coins {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		prices[strings.ToLower(parts[1])] = model.TokenPrice{
			Price:      value.Price,
			Confidence: value.Confidence,
			Timestamp:  value.Timestamp,
		}
	}

	return prices, nil
}

func (c *Client) cacheGet(ctx context.Context, address string) (model.TokenPrice, bool) {
	if c.redis == nil {
		return model.TokenPrice{}, false
	}

	raw, err := c.redis.Get(ctx, cacheKeyPrefix+address).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Price cache read failed", zap.String("token", address), zap.Error(err))
		}
		return model.TokenPrice{}, false
	}

	var price model.TokenPrice
	if err := json.Unmarshal(raw, &price); err != nil {
		return model.TokenPrice{}, false
	}

	return price, true
}

func (c *Client) cacheSet(ctx context.Context, address string, price model.TokenPrice) {
	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(price)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, cacheKeyPrefix+address, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Price cache write failed", zap.String("token", address), zap.Error(err))
	}
}

func dedupeLower(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	unique := make([]string, 0, len(addresses))
	for _, address := range addresses {
		lower := strings.ToLower(address)
		if lower == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		unique = append(unique, lower)
	}
	sort.Strings(unique)
	return unique
}
