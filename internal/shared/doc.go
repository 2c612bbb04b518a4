// Package shared contains the error taxonomy used across the service layers.
//
// # Kinds
//
// Every error that crosses a layer boundary can be classified with KindOf.
// Adapters use the kind to pick a response: the HTTP API maps it to a status
// code, the Telegram commands to a short reply.
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//		// 404
//	case shared.KindConflict:
//		// 409
//	}
//
// Scheduler errors need no marking: scheduler.ErrNotFound is KindNotFound,
// scheduler.ErrDuplicateID is KindConflict and scheduler.ErrConfig is
// KindValidation.
//
// # Priority
//
// When several kinds are present in one chain (errors.Join, or a marked error
// wrapping another), KindOf returns the first match in this order:
//
//	KindCanceled
//	KindTimeout
//	KindNotFound
//	KindValidation
//	KindConflict
//	KindDependencyFailure
//	KindInternal
//
// # Marking
//
// MarkKind attaches a kind to an arbitrary error without hiding it:
//
//	if err := db.PingContext(ctx); err != nil {
//		return shared.MarkKind(err, shared.KindDependencyFailure)
//	}
package shared
