// Package discovery finds Moonraker instances on the local network.
//
// Moonraker's zeroconf component advertises the _moonraker._tcp service.
// Each instance name may be seen on several interfaces; the browser merges
// their addresses into a single MoonrakerService and drops an instance once
// its last address is withdrawn.
//
//	b := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
//	svc, err := discovery.FindFirst(ctx, b)
//	endpoint := svc.URL()
package discovery
