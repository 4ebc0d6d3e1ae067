// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"strings"
)

// FormatCount renders a download count at human scale: 1234 -> "1.23K",
// 5600000 -> "5.6M". Values below 1000 are returned unchanged. Trailing
// zeros in the fraction are trimmed ("2.00K" -> "2K").
func FormatCount(n int64) string {
	neg := ""
	if n < 0 {
		neg = "-"
		n = -n
	}

	var value float64
	var suffix string
	switch {
	case n >= 1_000_000_000:
		value, suffix = float64(n)/1e9, "B"
	case n >= 1_000_000:
		value, suffix = float64(n)/1e6, "M"
	case n >= 1_000:
		value, suffix = float64(n)/1e3, "K"
	default:
		return fmt.Sprintf("%s%d", neg, n)
	}

	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
	return neg + s + suffix
}
