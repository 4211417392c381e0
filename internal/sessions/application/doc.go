// Package application holds the session Store and the Service built on it.
//
// The Store owns every session of the process and mirrors mutations into an
// optional domain.SessionRepository, retrying transient save faults. The
// Service wraps the Store and the monitor behind operations that return an
// Outcome carrying either data or a categorized error.
package application
