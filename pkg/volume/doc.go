// Package volume is the volume abstraction layer: one Entity contract over the
// system master volume and per-application volumes, and a Directory that
// enumerates, orders, bounds and caches entities for display on a remote device.
//
// Platform bindings implement Backend. The Directory never propagates transient
// read failures; only master acquisition failures escape, and only once per
// session.
package volume
