// Package health reports whether the parts of a ringpipe process are working.
//
// A Status is healthy, degraded or unhealthy. Degraded means frames still
// flow but something is being lost, such as bytes dropped by a full ring or
// frames dropped after sink errors.
//
// A Monitor holds statuses by name. Parts whose health changes continuously
// register a Check instead of pushing updates:
//
//	monitor := health.NewMonitor()
//	monitor.Update("output", health.NewHealthy("output", "connected"))
//	monitor.Register("pipeline", pump.Health)
//
//	status := monitor.AggregateHealth("ringpipe")
//
// Error text passed through FromError is stripped of URLs, paths, addresses
// and credentials before it is stored.
package health
