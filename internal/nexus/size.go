// Copyright (c) 2025, hui-shao and the byre contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nexus

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatError reports an unparseable size or numeric field. Callers treat
// it as non-fatal and substitute zero unless the field is load-critical.
type FormatError struct {
	Input string
	Field string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unparseable %s: %q", e.Field, e.Input)
}

// sizeMultipliers uses the binary base the site itself renders totals
// with; "1.50 GB" must come out as exactly 1_610_612_736 bytes.
var sizeMultipliers = map[string]int64{
	"B":   1,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"TB":  1 << 40,
	"TIB": 1 << 40,
	"PB":  1 << 50,
	"PIB": 1 << 50,
}

// ParseSize converts a localized byte-size string ("123.45 GB") into bytes.
func ParseSize(text string) (int64, error) {
	fields := strings.Fields(strings.ReplaceAll(strings.TrimSpace(text), ",", ""))

	var magnitude, unit string
	switch len(fields) {
	case 2:
		magnitude, unit = fields[0], fields[1]
	case 1:
		// Some cells glue the unit onto the number ("123.45GB").
		s := fields[0]
		i := len(s)
		for i > 0 && !isNumericByte(s[i-1]) {
			i--
		}
		magnitude, unit = s[:i], s[i:]
	default:
		return 0, &FormatError{Input: text, Field: "size"}
	}

	mult, ok := sizeMultipliers[strings.ToUpper(strings.TrimSpace(unit))]
	if !ok {
		return 0, &FormatError{Input: text, Field: "size"}
	}

	value, err := strconv.ParseFloat(magnitude, 64)
	if err != nil || value < 0 {
		return 0, &FormatError{Input: text, Field: "size"}
	}

	return int64(value * float64(mult)), nil
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders bytes the way the site does, binary-based.
func FormatSize(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}

// AgeDays computes the elapsed days between publishedAt and now. It is
// not clamped: a future timestamp under clock skew yields a negative
// value and callers clamp in display code only.
func AgeDays(publishedAt, now time.Time) float64 {
	return now.Sub(publishedAt).Seconds() / 86400
}

// intOr parses a decimal integer, substituting def for anything else.
func intOr(text string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return def
	}
	return v
}

func isNumericByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}
