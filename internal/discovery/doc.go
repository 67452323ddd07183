// Package discovery probes candidate endpoints to find reachable
// specialist agents and what each one can do.
//
// A Prober tries a fixed cascade per endpoint, stopping at the first
// hit: the capability manifest at /a2a/agent.json, the standard manifest
// at /.well-known/agent.json, the legacy /capabilities listing, and
// finally a bare /health check that proves presence without capability
// detail. Unreachable endpoints are skipped, never fatal. The Registry
// keeps the discovered set with incremental re-discovery semantics.
package discovery
