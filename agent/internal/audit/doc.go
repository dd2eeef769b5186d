// Package audit runs audits over the artifacts captured for one page load and
// assembles the report.
//
// An Audit declares the artifacts it needs in its Meta and turns them into a
// types.AuditResult. Missing or failed inputs, including a page load error,
// never surface as Go errors: they become results with scoreDisplayMode
// "error". Shared intermediate data such as network records, the navigation
// window and the main-thread task tree is computed through the per-run cache,
// so every audit that needs it reuses one computation.
//
// Runner executes the audits concurrently with a bounded errgroup and
// records run-level failures as a RuntimeError plus one run warning.
package audit
