// Package ctxutil provides context utility functions.
package ctxutil

import "context"

// Canceled reports whether ctx is already done, returning its error
// (Canceled or DeadlineExceeded) and nil otherwise. Store methods and the
// retry loop call it at entry so a canceled run never starts new work.
//
// ctx.Err() already returns nil while Done is open, so no select is needed.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}
