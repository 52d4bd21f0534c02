// Package audit moves security events (logins, lockouts, OTP activity,
// account status changes) off the request path.
//
// [Dispatcher] queues [Event] values and fans them out to every [Sink] from
// one goroutine. When the queue is full it either drops the event or blocks
// the caller, per [Config]. Which events exist and what they carry is decided
// by the engine; this package only delivers them.
package audit
