// Package updater keeps a status.Cache in step with a Moonraker session.
//
// An Updater is the single consumer of a session's event stream. Events are
// handled strictly in order on the goroutine that calls Run:
//
//   - Connected runs Bootstrap: list printer objects, keep the topics that
//     parse as known subsystems, subscribe to them, then clear the cache and
//     seed it from the subscribe reply.
//   - Disconnected clears the cache.
//   - notify_status_update merges each partial object into the cache.
//   - notify_proc_stat_update merges Moonraker's process stats under the
//     moonraker key.
//   - notify_klippy_* updates the device state and notifies the Observer.
//     Klippy becoming ready also re-runs Bootstrap, since the set of loaded
//     objects may have changed.
//
// Bootstrap failures are logged and abandon the epoch. There is no local
// retry: the next Connected or klippy ready event starts over.
//
// Usage:
//
//	cache := status.NewCache()
//	u := updater.New(session, cache, updater.Config{Logger: logger})
//	err := u.Run(ctx, session.Events())
package updater
