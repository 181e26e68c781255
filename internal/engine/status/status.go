// Package status computes a collaboration request's lifecycle status from its
// quantity fields. It is pure: no I/O, no clock, total over every reachable
// combination of inputs.
package status

import "colabora/internal/domain"

// Recompute returns the status implied by (target, reserved, fulfilled):
//
//  1. target set and fulfilled >= target  -> COMPLETED
//  2. nothing reserved, nothing fulfilled -> OPEN
//  3. anything else                       -> RESERVED
func Recompute(target *int64, reserved, fulfilled int64) string {
	if target != nil && fulfilled >= *target {
		return domain.RequestCompleted
	}
	if reserved == 0 && fulfilled == 0 {
		return domain.RequestOpen
	}
	return domain.RequestReserved
}
