package format

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"escrow/apps/escrow/internal/constants"
)

// TokenAmount converts a base-unit amount to a decimal representation
// using the token's decimals, with trailing zeros trimmed.
func TokenAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	wholePart := new(big.Int).Div(amount, divisor)
	remainder := new(big.Int).Mod(amount, divisor)

	if remainder.Sign() == 0 {
		return wholePart.String()
	}

	// Pad remainder with leading zeros to match decimal places
	remainderStr := remainder.String()
	for len(remainderStr) < decimals {
		remainderStr = "0" + remainderStr
	}
	// Remove trailing zeros
	remainderStr = strings.TrimRight(remainderStr, "0")
	if remainderStr == "" {
		return wholePart.String()
	}
	return wholePart.String() + "." + remainderStr
}

// ShortAddress renders an address as 0x1234...abcd.
func ShortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// USD renders a dollar value with two decimal places.
func USD(value float64) string {
	return fmt.Sprintf("$%.2f", value)
}

// Percent renders a percentage with one decimal place.
func Percent(value float64) string {
	return fmt.Sprintf("%.1f%%", value)
}

// Duration renders a span of seconds as up to two coarse units, e.g.
// "45 days, 12 hours".
func Duration(seconds int64) string {
	if seconds < 0 {
		return "0 seconds"
	}

	days := seconds / constants.SecondsPerDay
	hours := (seconds % constants.SecondsPerDay) / 3600
	minutes := (seconds % 3600) / 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 && days < 30 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 && days == 0 {
		parts = append(parts, plural(minutes, "minute"))
	}

	if len(parts) == 0 {
		return "less than a minute"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ", ")
}

// DurationHuman renders a span as a single round unit when it divides
// evenly, e.g. "1 year" or "6 months".
func DurationHuman(seconds int64) string {
	if seconds >= constants.SecondsPerYear && seconds%constants.SecondsPerYear == 0 {
		return plural(seconds/constants.SecondsPerYear, "year")
	}
	if seconds >= constants.SecondsPerMonth && seconds%constants.SecondsPerMonth == 0 {
		return plural(seconds/constants.SecondsPerMonth, "month")
	}
	if seconds >= constants.SecondsPerDay {
		return plural(seconds/constants.SecondsPerDay, "day")
	}
	return plural(seconds/3600, "hour")
}

// TimeAgo renders how long ago a time was, e.g. "2m ago".
func TimeAgo(t time.Time, now time.Time) string {
	diff := now.Sub(t)

	minutes := int64(diff.Minutes())
	hours := int64(diff.Hours())
	days := int64(diff.Hours() / 24)

	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	default:
		return fmt.Sprintf("%dd ago", days)
	}
}

// Date renders a Unix-seconds timestamp as a short UTC date.
func Date(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("Jan 2, 2006")
}

// DateTime renders a Unix-seconds timestamp with time of day, UTC.
func DateTime(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("Jan 2, 2006 15:04")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
