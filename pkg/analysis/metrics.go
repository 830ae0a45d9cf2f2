// Package analysis turns live ERP facts into derived metrics, LLM-backed
// insights and periodic reports. All metric math lives in pure functions
// so the pipelines stay testable without an ERP.
package analysis

import (
	"math"
	"time"
)

// DefaultWeeklyCapacity is the assumed workweek in hours.
const DefaultWeeklyCapacity = 40.0

// Utilization statuses.
const (
	StatusOverloaded    = "overloaded"
	StatusUnderutilized = "underutilized"
	StatusBalanced      = "balanced"
)

// Contract statuses.
const (
	ContractExpired      = "expired"
	ContractExpiringSoon = "expiring_soon"
	ContractActive       = "active"
)

// Severity levels for overdue tasks.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

const (
	bottleneckShare        = 0.30
	concerningBlockedShare = 0.20
)

// Utilization is workload as a percentage of weekly capacity.
func Utilization(remainingHours, weeklyCapacity float64) float64 {
	if weeklyCapacity <= 0 {
		weeklyCapacity = DefaultWeeklyCapacity
	}
	return remainingHours / weeklyCapacity * 100
}

// UtilizationStatus buckets a utilization percentage.
func UtilizationStatus(pct float64) string {
	switch {
	case pct >= 80:
		return StatusOverloaded
	case pct <= 50:
		return StatusUnderutilized
	default:
		return StatusBalanced
	}
}

// OverdueSeverity buckets how long a task has been past its deadline.
func OverdueSeverity(daysOverdue int) string {
	switch {
	case daysOverdue > 7:
		return SeverityCritical
	case daysOverdue > 3:
		return SeverityHigh
	case daysOverdue > 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Variance is the population variance of values; 0 for fewer than two.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}

// BalanceScore scores how evenly work is spread: 100 is perfectly even.
func BalanceScore(utilizations []float64) float64 {
	return math.Max(0, 100-Variance(utilizations))
}

// WorkloadAlertNeeded reports whether the balance picture warrants a
// manager alert.
func WorkloadAlertNeeded(balanceScore float64, overloadedCount int) bool {
	return balanceScore < 50 || overloadedCount > 2
}

// IsBottleneck reports whether a stage holds a disproportionate share of
// the open tasks.
func IsBottleneck(stageTasks, openTasks int) bool {
	if openTasks == 0 {
		return false
	}
	return float64(stageTasks)/float64(openTasks) > bottleneckShare
}

// BlockedRatioConcerning reports whether too many tasks are blocked.
func BlockedRatioConcerning(blocked, total int) bool {
	if total == 0 {
		return false
	}
	return float64(blocked)/float64(total) > concerningBlockedShare
}

// ContractStatus derives the lifecycle status and days-until-expiry of a
// contract from its end date. A zero end date means an open-ended
// contract: active, with daysUntil reported as -1.
func ContractStatus(endDate, today time.Time) (string, int) {
	if endDate.IsZero() {
		return ContractActive, -1
	}
	end := endDate.Truncate(24 * time.Hour)
	day := today.Truncate(24 * time.Hour)
	daysUntil := int(end.Sub(day).Hours() / 24)
	switch {
	case daysUntil < 0:
		return ContractExpired, daysUntil
	case daysUntil <= 30:
		return ContractExpiringSoon, daysUntil
	default:
		return ContractActive, daysUntil
	}
}

// ComplianceScore is the share of items that are compliant, exempted or
// not applicable. No items means nothing to violate: 100.
func ComplianceScore(okItems, totalItems int) float64 {
	if totalItems == 0 {
		return 100
	}
	return float64(okItems) / float64(totalItems) * 100
}
