// Package store is the shared TTL-bounded session store. The redis
// implementation is the single cross-instance source of truth for
// device and streaming session records; the degraded implementation
// keeps the coordinator available when redis is down.
package store
