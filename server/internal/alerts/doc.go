// Package alerts implements the budget rule engine and webhook delivery for
// threadwork-server. Rules are evaluated against every uploaded report, keyed
// by rule name and page URL; webhooks are delivered to Teams, Slack,
// PagerDuty, or generic HTTP targets when an alert fires or resolves.
//
// Condition grammar is "field op value", for example:
//
//	score < 0.5
//	total_ms > 4000
//	category.scriptEvaluation >= 1500
//	audit.label-content-name-mismatch < 1
//	runtime_error == PAGE_HUNG
package alerts
