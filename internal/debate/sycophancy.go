package debate

import "strings"

// SycophancyMarkers are the praise-opening phrases that flag a challenger
// as deferring instead of disagreeing. Matching is case-insensitive and
// restricted to the opening of the response; a genuine critique that
// happens to concede a point deep in its body is not penalised.
var SycophancyMarkers = []string{
	"great answer",
	"good point",
	"no significant flaws",
	"the proposal is sound",
	"i agree with the",
	"i largely agree",
}

// sycophancyWindow is how many leading characters are scanned for markers.
const sycophancyWindow = 200

// Sycophantic reports whether a challenge opens with deference rather
// than critique. Pure function of its input: calling it twice on the same
// string always returns the same result.
func Sycophantic(content string) bool {
	head := content
	if runes := []rune(head); len(runes) > sycophancyWindow {
		head = string(runes[:sycophancyWindow])
	}
	head = strings.ToLower(head)
	for _, marker := range SycophancyMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}
