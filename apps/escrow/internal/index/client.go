package index

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"escrow/apps/escrow/internal/model"
)

const (
	escrowsStaleAfter = 5 * time.Minute
	tokensStaleAfter  = time.Hour
)

// Client fetches the static escrow and token indexes and caches them in
// memory. The indexes are read-only snapshots produced by the external
// indexer; a failed refresh serves the previous snapshot instead of
// erroring, so index outages degrade to stale data rather than failures.
type Client struct {
	escrowsURL string
	tokensURL  string
	httpClient *http.Client
	logger     *zap.Logger

	mu             sync.RWMutex
	escrows        *model.EscrowsIndex
	escrowsFetched time.Time
	tokens         *model.TokensIndex
	tokensFetched  time.Time
}

func NewClient(escrowsURL, tokensURL string, logger *zap.Logger) *Client {
	return &Client{
		escrowsURL: escrowsURL,
		tokensURL:  tokensURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Escrows returns the escrow index, refreshing it when stale.
func (c *Client) Escrows(ctx context.Context) (*model.EscrowsIndex, error) {
	c.mu.RLock()
	cached := c.escrows
	fresh := time.Since(c.escrowsFetched) < escrowsStaleAfter
	c.mu.RUnlock()

	if cached != nil && fresh {
		return cached, nil
	}

	var index model.EscrowsIndex
	if err := c.fetchJSON(ctx, c.escrowsURL, &index); err != nil {
		if cached != nil {
			c.logger.Warn("Escrow index refresh failed, serving stale snapshot", zap.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch escrow index: %w", err)
	}

	c.mu.Lock()
	c.escrows = &index
	c.escrowsFetched = time.Now()
	c.mu.Unlock()

	c.logger.Info("Loaded escrow index",
		zap.Int("escrow_count", len(index.Escrows)),
		zap.Uint64("last_block", index.LastBlock))

	return &index, nil
}

// Tokens returns the token metadata index, refreshing it when stale.
func (c *Client) Tokens(ctx context.Context) (*model.TokensIndex, error) {
	c.mu.RLock()
	cached := c.tokens
	fresh := time.Since(c.tokensFetched) < tokensStaleAfter
	c.mu.RUnlock()

	if cached != nil && fresh {
		return cached, nil
	}

	var index model.TokensIndex
	if err := c.fetchJSON(ctx, c.tokensURL, &index); err != nil {
		if cached != nil {
			c.logger.Warn("Token index refresh failed, serving stale snapshot", zap.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch token index: %w", err)
	}

	c.mu.Lock()
	c.tokens = &index
	c.tokensFetched = time.Now()
	c.mu.Unlock()

	return &index, nil
}

// EscrowByAddress returns the indexed record for an escrow address, or nil
// when the index does not know it.
func (c *Client) EscrowByAddress(ctx context.Context, address string) (*model.IndexedEscrow, error) {
	index, err := c.Escrows(ctx)
	if err != nil {
		return nil, err
	}

	for i := range index.Escrows {
		if strings.EqualFold(index.Escrows[i].Address, address) {
			escrow := index.Escrows[i]
			return &escrow, nil
		}
	}

	return nil, nil
}

// EscrowsByParticipant returns every escrow where the address is the
// recipient or the funder.
func (c *Client) EscrowsByParticipant(ctx context.Context, address string) ([]model.IndexedEscrow, error) {
	index, err := c.Escrows(ctx)
	if err != nil {
		return nil, err
	}

	var matches []model.IndexedEscrow
	for _, escrow := range index.Escrows {
		if strings.EqualFold(escrow.Recipient, address) || strings.EqualFold(escrow.Funder, address) {
			matches = append(matches, escrow)
		}
	}

	return matches, nil
}

// TokenMetadata returns metadata for a token address, or nil when the index
// has no entry for it.
func (c *Client) TokenMetadata(ctx context.Context, tokenAddress string) (*model.TokenMetadata, error) {
	index, err := c.Tokens(ctx)
	if err != nil {
		return nil, err
	}

	if metadata, exists := index.Tokens[strings.ToLower(tokenAddress)]; exists {
		return &metadata, nil
	}

	return nil, nil
}

func (c *Client) fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
