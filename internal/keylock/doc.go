// Package keylock provides a registry of per-key mutexes used to serialize
// mutating operations on individual sessions and reports.
package keylock
