// Package retry runs an operation again with exponential backoff until it
// succeeds or the attempt budget is spent.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//		_, err := client.SendMessage(ctx, params)
//		return err
//	})
//
// DoIf takes a custom predicate for deciding which errors are worth another
// attempt.
package retry
