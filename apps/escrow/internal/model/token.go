package model

// TokenMetadata describes an ERC-20 token, sourced from the static token
// index keyed by lowercase address.
type TokenMetadata struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Decimals int     `json:"decimals"`
	LogoURL  *string `json:"logoUrl"`
}

// TokensIndex is the schema of the external tokens.json resource.
type TokensIndex struct {
	LastUpdated string                   `json:"lastUpdated"`
	Tokens      map[string]TokenMetadata `json:"tokens"`
}

// TokenPrice is a spot price from the external price feed, USD per whole
// token. Prices are short-lived and cached for about an hour.
type TokenPrice struct {
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}
