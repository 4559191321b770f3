// Package sim is a small grid world for driving the scheduler end to end.
//
// Sources regenerate energy, a spawn turns energy into workers, sites become
// structures once built, and raids put hostiles on structures from time to
// time. The scheduler never sees the live World: every tick it gets a
// Snapshot, and behaviors change the world through World's action methods.
package sim
