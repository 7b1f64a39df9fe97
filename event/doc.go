// Package event provides a frame-synchronized scheduler for deferred callbacks. Instead of arming a goroutine or
// an OS timer per wait, callbacks are registered against the scheduler's accumulated time and fired by the main loop
// when it pumps the scheduler with the time elapsed since the previous frame. Everything happens on the goroutine that
// drives the loop, which keeps execution sequential and tests deterministic.
//
// Other goroutines reach the loop through a Queue: they enqueue actions which the loop drains once per frame.
package event
