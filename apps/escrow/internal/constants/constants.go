package constants

import (
	"fmt"
	"strings"
)

// Chain configuration
const (
	ChainID         = 1
	EthereumChainID = "1"
)

// Contract addresses
const (
	FactoryAddress = "0x200C92Dd85730872Ab6A1e7d5E40A067066257cF"
	ZeroAddress    = "0x0000000000000000000000000000000000000000"
)

// Default data endpoints
const (
	DefaultEscrowsDataURL = "https://escrows.example.org/data/escrows.json"
	DefaultTokensDataURL  = "https://escrows.example.org/data/tokens.json"
)

// DeFiLlama current-prices API
const DefiLlamaPriceAPI = "https://coins.llama.fi/prices/current"

// Token logo CDN
const TokenLogoCDN = "https://assets.smold.app/api/token"

// PriceCacheTTLSeconds is how long fetched prices stay valid (1 hour).
const PriceCacheTTLSeconds = 3600

// RecentlyViewedLimit caps the recently-viewed ring buffer.
const RecentlyViewedLimit = 20

// DonationBps is the optional protocol donation passed to the factory when
// the funder opts in (1% in basis points).
const DonationBps = 100

// Schedule duration units in seconds.
const (
	SecondsPerDay   = 24 * 60 * 60
	SecondsPerMonth = 30 * SecondsPerDay
	SecondsPerYear  = 365 * SecondsPerDay
)

// DeployDurationPresets are the vesting lengths offered by the create flow.
var DeployDurationPresets = []int64{
	6 * SecondsPerMonth,
	SecondsPerYear,
	2 * SecondsPerYear,
	3 * SecondsPerYear,
	4 * SecondsPerYear,
}

// Etherscan
const EtherscanURL = "https://etherscan.io"

// TokenLogoURL builds a CDN logo URL for a token address.
func TokenLogoURL(tokenAddress string, size int) string {
	return fmt.Sprintf("%s/%d/%s/logo-%d.png", TokenLogoCDN, ChainID, strings.ToLower(tokenAddress), size)
}

// PriceAPIURL builds the DeFiLlama request URL for a list of token addresses.
func PriceAPIURL(baseURL string, tokenAddresses []string) string {
	coins := make([]string, 0, len(tokenAddresses))
	for _, addr := range tokenAddresses {
		coins = append(coins, "ethereum:"+strings.ToLower(addr))
	}
	return baseURL + "/" + strings.Join(coins, ",")
}

// EtherscanTxURL builds an Etherscan link for a transaction hash.
func EtherscanTxURL(txHash string) string {
	return EtherscanURL + "/tx/" + txHash
}

// EtherscanAddressURL builds an Etherscan link for an address.
func EtherscanAddressURL(address string) string {
	return EtherscanURL + "/address/" + address
}
