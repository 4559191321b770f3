// Package task defines task templates, live task instances and the registry
// that creates one from the other.
//
// A Template is immutable once registered. An Instance is a template bound
// to a destination; its exported fields are the only state that carries a
// task across ticks, and they round-trip through Record.
package task
