// Package syncobj implements the kernel's blocking synchronization
// primitives: bounded queues, counting/binary semaphores (with mutex
// re-entrance), and event groups. Every blocking operation is a
// kcall.Syscall body that either completes immediately or records the
// calling task on the primitive's own wait list and returns
// txn.ErrRetry, which both clears the task's journal (nothing persists
// across a block) and, once some other task calls sched.Scheduler.Wake
// on it, causes txn.Run to retry the same call from scratch. Grounded
// on original_source/src/queue.rs, semaphore.rs and event_group.rs.
package syncobj
