// Package domain implements the domain layer for workflow sessions.
//
// This package holds only pure Go code:
//   - Step is a closed variant of GuidanceStep and CommandStep
//   - Frame is a single workflow with a cursor into its steps
//   - Session is a stack of frames, with the last frame active
//   - The error taxonomy (not found, storage fault, invalid state, malformed record)
//   - The SessionRepository port and the persisted JSON record format
//
// # Stack Semantics
//
// Pushing a workflow suspends the current frame. Advancing past the last step
// of the active frame pops it and resumes the parent; popping the bottom frame
// leaves the session terminal. Breaking out of a workflow is refused for the
// bottom frame so a session cannot be emptied without completing its work.
//
// # Import Aliasing
//
// The application layer also defines session types. When importing both, use
// aliasing to disambiguate:
//
//	import (
//	    sessiondomain "github.com/zjrosen/vibe/internal/sessions/domain"
//	    sessionapp "github.com/zjrosen/vibe/internal/sessions/application"
//	)
package domain
