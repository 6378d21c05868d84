// Package access guards the denormalized is_active / is_blocked pair on user
// records. Internally access is a single tri-state value; the boolean pair
// only appears at the persistence boundary, and every toggle lands as one
// atomic write so the invariant is_active == !is_blocked always holds for
// readers.
package access
