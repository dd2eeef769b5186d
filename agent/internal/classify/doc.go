// Package classify maps trace event names to main-thread work categories.
//
// The mapping is a static table derived from Chrome's task groups. Names that
// are not in the table classify as Other; Lookup tells callers whether a name
// was actually mapped so that a task tree can let unmapped children inherit
// their parent's category.
package classify
