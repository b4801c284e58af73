// Package clock converts between "HH:MM" clock text and minutes since midnight.
//
// None of the helpers validate their input. Callers keep values inside a
// single day (0-1439) and pass text in "HH:MM" or "HH:MM:SS" layout.
package clock

import (
	"fmt"
	"strconv"
	"strings"
)

const MinutesPerDay = 24 * 60

// ToMinutes parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
// Seconds are ignored. Fields that are not numbers count as zero.
func ToMinutes(s string) int {
	parts := strings.SplitN(s, ":", 3)
	hours, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	mins := 0
	if len(parts) > 1 {
		mins, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return hours*60 + mins
}

// FromMinutes renders minutes since midnight as zero-padded "HH:MM".
// Values past the end of the day are not wrapped: 1505 renders as "25:05".
func FromMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Normalize drops the seconds from "HH:MM:SS" text.
func Normalize(s string) string {
	if len(s) <= 5 {
		return s
	}
	return s[:5]
}
