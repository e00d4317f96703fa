// Package dates normalizes the heterogeneous date encodings the FlexiBee
// API produces into plain "YYYY-MM-DD" strings.
//
// FlexiBee servers return dates in several shapes depending on version and
// locale: "2024-05-11+02:00" (date with a UTC-offset suffix),
// "2024-11-08T00:00:00" (ISO timestamp), "11.05.2024" (European dotted
// order), and occasionally hybrids like "11+02:00.05.2024" where the offset
// lands mid-string. Normalize handles all of them best-effort and never
// fails: malformed input degrades to a truncated cleanup of the raw value
// rather than an error, so a single odd date cannot abort a sync run.
package dates

import (
	"regexp"
	"strings"
)

var (
	offsetPattern = regexp.MustCompile(`\+\d{2}:\d{2}`)
	isoPattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	digitsOnly    = regexp.MustCompile(`\D`)
)

// Normalize converts a raw FlexiBee date string to "YYYY-MM-DD".
// Empty input yields an empty string. The cleanup policy, in order:
// strip UTC-offset suffixes wherever they occur, keep only the date part
// before a literal 'T', reassemble dotted day.month.year ordering, extract
// the first ISO-shaped substring, and finally fall back to the first ten
// characters of the cleaned string.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	// Offsets like +02:00 can appear anywhere, not just at the end.
	cleaned := offsetPattern.ReplaceAllString(raw, "")

	if idx := strings.IndexByte(cleaned, 'T'); idx >= 0 {
		cleaned = cleaned[:idx]
	}

	if strings.Contains(cleaned, ".") && !strings.Contains(cleaned, "-") {
		if date, ok := fromDotted(cleaned); ok {
			return date
		}
	}

	if match := isoPattern.FindString(cleaned); match != "" {
		return match
	}

	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > 10 {
		cleaned = cleaned[:10]
	}
	return cleaned
}

// fromDotted reassembles "DD.MM.YYYY" as "YYYY-MM-DD", taking only digit
// characters from each segment.
func fromDotted(s string) (string, bool) {
	var parts []string
	for _, seg := range strings.Split(s, ".") {
		seg = digitsOnly.ReplaceAllString(seg, "")
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) < 3 {
		return "", false
	}

	day := lastN(parts[0], 2)
	month := lastN(parts[1], 2)
	year := firstN(parts[2], 4)

	return year + "-" + pad2(month) + "-" + pad2(day), true
}

func lastN(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func pad2(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
