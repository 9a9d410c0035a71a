// Package core provides the shared domain model of the tick audit engine.
//
// # Design Principles
//
// All structures in this package adhere to the following constraints:
//
//  1. No implied fields that could affect determinism (no timestamps, no
//     goroutine or pointer identity)
//  2. Every serialized field is explicit and has a fixed position
//  3. Values support exact, platform-independent serialization for hashing
//
// # Core Types
//
// Params: the run configuration snapshot {tau, q, alpha, window, scale}.
// TickRecord: one immutable observation emitted per stream per tick.
// Label: the closed set of symbolic resolutions.
//
// Any change to the serialized shape of these types is a conformance break and
// must bump ProfileVersion.
package core
