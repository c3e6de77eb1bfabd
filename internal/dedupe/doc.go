// Package dedupe remembers recently seen keys for a short window so repeated
// notifications (a reconnect storm, a backend that repeats its error frame)
// are shown once. Time comes from a clockwork.Clock.
package dedupe
