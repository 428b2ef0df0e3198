// Package session owns the per-device streaming lifecycle:
//
//	Idle -> Active -> Processing -> Completed
//	any non-terminal state -> Failed
//
// A device holds at most one non-terminal session; a press while one is
// open (Active or Processing) is rejected with PROTOCOL_VIOLATION
// rather than silently allocating a second session.
//
// Two timeout mechanisms coexist on purpose. The sweeper's ceiling
// (default 10m) is the operational bound on a session's lifetime; the
// store's absolute 1h TTL is only a memory backstop for records whose
// owning process died. Config validation keeps the ceiling below the
// TTL so the store never evicts a session this package still tracks.
package session
