package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// evalCondition evaluates a rule condition string against a Report.
//
// Supported fields:
//
//	score            main-thread work breakdown score, 0..1
//	total_ms         main-thread time after throttling adjustment
//	savings_ms       TBT savings reported by the breakdown
//	long_tasks       number of long tasks
//	longest_task_ms  duration of the longest task
//	category.<id>    time spent in one category
//	audit.<id>       score of any audit; unscored audits never fire
//	runtime_error    run-level error code ("==" or "!="; "any" matches every code)
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed, the field is unknown,
// or the report carries no value for it.
func evalCondition(cond string, r *types.Report) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "runtime_error" {
		code := ""
		if r.RuntimeError != nil {
			code = r.RuntimeError.Code
		}
		match := code != "" && (rhs == "any" || code == rhs)
		switch op {
		case "==":
			return match, 0
		case "!=":
			return code != "" && !match, 0
		}
		return false, 0
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	v, ok := numericField(field, r)
	if !ok {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the report.
func numericField(field string, r *types.Report) (float64, bool) {
	if id, ok := strings.CutPrefix(field, "audit."); ok {
		a := r.Audit(id)
		if a == nil || a.Score == nil {
			return 0, false
		}
		return *a.Score, true
	}

	s := r.Summary
	if s == nil {
		return 0, false
	}
	if id, ok := strings.CutPrefix(field, "category."); ok {
		v, found := s.Categories[id]
		return v, found
	}
	switch field {
	case "score":
		return s.Score, true
	case "total_ms":
		return s.TotalMs, true
	case "savings_ms":
		return s.MetricSavingsMs, true
	case "long_tasks":
		return float64(s.LongTaskCount), true
	case "longest_task_ms":
		return s.LongestTaskMs, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
