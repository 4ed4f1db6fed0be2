package model

import "fmt"

// FormatUSD renders an amount compactly, e.g. $2.50M
func FormatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

// FormatPercent renders an APY given in percent
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
