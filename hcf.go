// Package hcf synchronizes a crawl frontier between cooperating crawler
// processes through a remote, slot-sharded batch store. Producers buffer
// requests per slot and flush them as batches, consumers pull and
// acknowledge batches, and a state cache shares per-fingerprint crawl
// state across processes.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, redis/, http/).
package hcf
