// Package tx groups block modifications into transactions.
//
// Transaction lifecycle:
//  1. Manager.Begin(ctx, est): open a transaction sized for at most est
//     distinct buffers and attach it to the returned context.
//  2. Mutate buffers, then Manager.AddBuffer(ctx, ref) for each one before
//     the mutating call returns.
//  3. Tx.Commit(ctx): write every added buffer to the device, record the
//     byte ranges with the dirty tracker and flush them.
//  4. Tx.Rollback(): discard the changes; held buffers are reloaded from the
//     device so nothing partial becomes durable.
//
// A buffer added outside a transaction, or one more buffer than the
// transaction was sized for, is a consistency fault.
package tx
