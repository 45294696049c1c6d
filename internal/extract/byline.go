package extract

import "strings"

// DefaultRoleMarkers are the role words that trail a reporter's name.
var DefaultRoleMarkers = []string{"기자", "특파원"}

var bylineDelimiters = []string{"(", "[", "<", "|", "/", "·"}

// CleanByline reduces raw byline text to the reporter's name, or "" when no
// name can be isolated.
//
// "정치부 홍길동 기자" yields "홍길동": the text before the first role marker is
// taken and its last token kept. Without a marker the text is cut at the
// first delimiter and the last remaining token is kept.
func CleanByline(raw string, roleMarkers []string) string {
	s := collapseSpaces(raw)
	if s == "" {
		return ""
	}
	if idx := firstIndex(s, roleMarkers); idx > 0 {
		if before := strings.TrimSpace(s[:idx]); before != "" {
			return lastToken(before)
		}
	}
	cleaned := s
	for _, d := range bylineDelimiters {
		if i := strings.Index(cleaned, d); i >= 0 {
			cleaned = cleaned[:i]
		}
	}
	return lastToken(strings.TrimSpace(cleaned))
}

func firstIndex(s string, needles []string) int {
	best := -1
	for _, n := range needles {
		if n == "" {
			continue
		}
		if i := strings.Index(s, n); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
