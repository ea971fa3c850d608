package attendance

import (
	"fmt"
	"time"
)

// FormatDuration renders d as whole hours, minutes and seconds, dropping the
// larger units when they would be zero.
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)

	switch {
	case seconds > 3600:
		return fmt.Sprintf("%d hours, %d minutes, %d seconds", seconds/3600, (seconds%3600)/60, seconds%60)
	case seconds > 60:
		return fmt.Sprintf("%d minutes, %d seconds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}
