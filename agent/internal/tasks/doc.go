// Package tasks rebuilds the main-thread task tree from trace events and turns
// it into per-category self-time samples.
//
// Tasks are stored in an arena (Tree.Tasks) and refer to their parent and
// children by index. Each task's self time is its duration minus the durations
// of its direct children, so summing self time over the whole tree gives the
// thread's busy time with nothing counted twice. A task whose name is not in
// the classification table inherits its parent's category. A child may overrun
// its parent by up to a millisecond of clock skew; anything larger is malformed
// nesting and Build fails with ErrNegativeSelfTime.
package tasks
