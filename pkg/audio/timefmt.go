package audio

import (
	"fmt"
	"math"
)

// FormatTime renders seconds as m:ss, e.g. 3 -> "0:03", 125.7 -> "2:05".
// Negative and non-finite values render as "0:00".
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
