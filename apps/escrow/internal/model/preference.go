package model

// RecentlyViewedItem is one entry of the recently-viewed ring buffer,
// keyed by escrow address.
type RecentlyViewedItem struct {
	Address   string `json:"address"`
	VisitedAt int64  `json:"visitedAt"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
}
