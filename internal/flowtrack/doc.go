// Package flowtrack tracks the UI messages created during a multi-step
// interactive flow so stale rendered state can be superseded or removed when
// the flow advances or is cancelled.
package flowtrack
