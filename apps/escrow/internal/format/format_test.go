package format

import (
	"math/big"
	"testing"
	"time"
)

func TestTokenAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int
		want     string
	}{
		{"whole tokens", "5000000000000000000", 18, "5"},
		{"fractional", "5250000000000000000", 18, "5.25"},
		{"trims trailing zeros", "1100000000", 8, "11"},
		{"sub one", "500000000000000000", 18, "0.5"},
		{"zero", "0", 18, "0"},
		{"zero decimals", "1234", 0, "1234"},
		{"tiny fraction keeps leading zeros", "1000000000001", 18, "0.000001000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, _ := new(big.Int).SetString(tt.amount, 10)
			if got := TokenAmount(amount, tt.decimals); got != tt.want {
				t.Errorf("TokenAmount(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}

	if got := TokenAmount(nil, 18); got != "0" {
		t.Errorf("TokenAmount(nil) = %s, want 0", got)
	}
}

func TestShortAddress(t *testing.T) {
	got := ShortAddress("0x200C92Dd85730872Ab6A1e7d5E40A067066257cF")
	if got != "0x200C...57cF" {
		t.Errorf("ShortAddress() = %s, want 0x200C...57cF", got)
	}

	if got := ShortAddress("0xabc"); got != "0xabc" {
		t.Errorf("short input should pass through, got %s", got)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{45*86400 + 12*3600, "45 days, 12 hours"},
		{86400, "1 day"},
		{3600 + 120, "1 hour, 2 minutes"},
		{90, "1 minute"},
		{30, "less than a minute"},
		{-5, "0 seconds"},
		{40 * 86400, "40 days"},
	}

	for _, tt := range tests {
		if got := Duration(tt.seconds); got != tt.want {
			t.Errorf("Duration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestDurationHuman(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{365 * 86400, "1 year"},
		{2 * 365 * 86400, "2 years"},
		{6 * 30 * 86400, "6 months"},
		{10 * 86400, "10 days"},
		{7200, "2 hours"},
	}

	for _, tt := range tests {
		if got := DurationHuman(tt.seconds); got != tt.want {
			t.Errorf("DurationHuman(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Unix(1_756_000_000, 0)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}

	for _, tt := range tests {
		if got := TimeAgo(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("TimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
