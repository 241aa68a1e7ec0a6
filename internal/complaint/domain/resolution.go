package domain

import (
	"math"
	"time"
)

// ComputeResolutionHours returns the elapsed time between creation and
// resolution in whole hours, rounded half up. Clock skew that puts
// resolvedAt before createdAt yields 0.
func ComputeResolutionHours(createdAt, resolvedAt time.Time) int {
	elapsed := resolvedAt.Sub(createdAt)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(elapsed.Hours()))
}
