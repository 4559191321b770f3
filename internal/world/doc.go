// Package world is the read-only view of simulation state the scheduler sees
// during one tick.
//
// Entities are referred to by ID handles, never by pointer. A handle is
// resolved against the current Snapshot and yields (value, false) once the
// entity no longer exists, so nothing held across a tick boundary can dangle.
package world
