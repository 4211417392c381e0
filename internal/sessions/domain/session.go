package domain

import (
	"time"
)

// AdvanceOutcome reports what AdvanceStep did to the stack.
type AdvanceOutcome int

const (
	// AdvanceNoop means the session had no frames.
	AdvanceNoop AdvanceOutcome = iota
	// AdvanceStepped means the top frame moved to its next step.
	AdvanceStepped
	// AdvanceFrameCompleted means the top frame finished and was popped,
	// resuming its parent.
	AdvanceFrameCompleted
	// AdvanceSessionCompleted means the last frame finished and was popped.
	AdvanceSessionCompleted
)

// String returns the outcome name.
func (o AdvanceOutcome) String() string {
	switch o {
	case AdvanceStepped:
		return "stepped"
	case AdvanceFrameCompleted:
		return "frame_completed"
	case AdvanceSessionCompleted:
		return "session_completed"
	default:
		return "noop"
	}
}

// Advanced reports whether the call changed the session.
func (o AdvanceOutcome) Advanced() bool { return o != AdvanceNoop }

// FrameSpec names a workflow and its steps for pushing onto a session.
type FrameSpec struct {
	Name    string
	Steps   []Step
	Context map[string]any
}

// Session is a stack of workflow frames driven by an agent. The last element
// of Stack is the active frame; the session is terminal when Stack is empty.
type Session struct {
	ID           string         `json:"session_id"`
	Prompt       string         `json:"prompt"`
	Stack        []*Frame       `json:"workflow_stack"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	Config       *SessionConfig `json:"session_config,omitempty"`

	clock func() time.Time
}

// NewSession creates a session whose timestamps are both set to now.
func NewSession(id, prompt string, cfg *SessionConfig, now time.Time) *Session {
	return &Session{
		ID:           id,
		Prompt:       prompt,
		Stack:        []*Frame{},
		CreatedAt:    now,
		LastAccessed: now,
		Config:       cfg,
	}
}

// SetClock overrides the time source used to stamp LastAccessed.
func (s *Session) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *Session) touch() {
	if s.clock != nil {
		s.LastAccessed = s.clock()
		return
	}
	s.LastAccessed = time.Now()
}

// Depth is the number of frames on the stack.
func (s *Session) Depth() int { return len(s.Stack) }

// IsComplete reports whether the session has no frames left.
func (s *Session) IsComplete() bool { return len(s.Stack) == 0 }

// Top returns the active frame, or nil for a terminal session.
func (s *Session) Top() *Frame {
	if len(s.Stack) == 0 {
		return nil
	}
	return s.Stack[len(s.Stack)-1]
}

// PushWorkflow places a new frame on top of the stack.
func (s *Session) PushWorkflow(name string, steps []Step, context map[string]any) {
	s.Stack = append(s.Stack, NewFrame(name, steps, context))
	s.touch()
}

// AdvanceStep moves the active frame forward and pops it once it completes.
// A frame that is already complete when AdvanceStep is called is popped.
func (s *Session) AdvanceStep() AdvanceOutcome {
	top := s.Top()
	if top == nil {
		return AdvanceNoop
	}
	top.Advance()
	s.touch()
	if !top.IsComplete() {
		return AdvanceStepped
	}
	s.Stack = s.Stack[:len(s.Stack)-1]
	if len(s.Stack) == 0 {
		return AdvanceSessionCompleted
	}
	return AdvanceFrameCompleted
}

// BackStep moves the active frame back one step. It never pops a frame and
// returns false at the first step or on a terminal session.
func (s *Session) BackStep() bool {
	top := s.Top()
	if top == nil || !top.Back() {
		return false
	}
	s.touch()
	return true
}

// RestartSession rewinds every frame to its first step.
func (s *Session) RestartSession() {
	for _, f := range s.Stack {
		f.CurrentStep = 0
	}
	s.touch()
}

// BreakWorkflow abandons the active frame and resumes its parent. The bottom
// frame cannot be broken out of: with one frame or fewer this returns false
// and leaves the session unchanged.
func (s *Session) BreakWorkflow() bool {
	if len(s.Stack) <= 1 {
		return false
	}
	s.Stack = s.Stack[:len(s.Stack)-1]
	s.touch()
	return true
}

// StepView describes the step an agent should work on next.
type StepView struct {
	WorkflowName string `json:"workflow"`
	StepNumber   int    `json:"step_number"` // 1-based
	TotalSteps   int    `json:"total_steps"`
	StepText     string `json:"step_text"`
	Instruction  string `json:"instruction"`
	IsCommand    bool   `json:"is_command"`
	Command      string `json:"command,omitempty"`
	WorkingDir   string `json:"working_dir,omitempty"`
	Depth        int    `json:"depth"`
	// Paused lists the suspended parent workflows, outermost first.
	Paused []string `json:"paused_workflows,omitempty"`
}

// CurrentStep describes the active frame's current step. It returns false for
// a terminal session or a complete active frame.
func (s *Session) CurrentStep() (StepView, bool) {
	top := s.Top()
	if top == nil {
		return StepView{}, false
	}
	step, ok := top.Current()
	if !ok {
		return StepView{}, false
	}

	cfg := DefaultSessionConfig()
	if s.Config != nil {
		cfg = *s.Config
	}

	instruction := step.Text()
	if cfg.AgentPrefix {
		instruction = RenderStep(step)
	}
	if cfg.AgentSuffix {
		instruction += "\n\n" + ReminderAnnotation
	}

	view := StepView{
		WorkflowName: top.WorkflowName,
		StepNumber:   top.CurrentStep + 1,
		TotalSteps:   len(top.Steps),
		StepText:     step.Text(),
		Instruction:  instruction,
		IsCommand:    IsCommand(step),
		Depth:        len(s.Stack),
	}
	if cmd, ok := step.(CommandStep); ok {
		view.Command = cmd.Command
		view.WorkingDir = cmd.WorkingDir
	}
	for _, f := range s.Stack[:len(s.Stack)-1] {
		view.Paused = append(view.Paused, f.WorkflowName)
	}
	return view, true
}

// WorkflowNames lists the stack from bottom to top.
func (s *Session) WorkflowNames() []string {
	names := make([]string, 0, len(s.Stack))
	for _, f := range s.Stack {
		names = append(names, f.WorkflowName)
	}
	return names
}

// InactiveFor returns how long the session has gone without a mutation.
func (s *Session) InactiveFor(now time.Time) time.Duration {
	return now.Sub(s.LastAccessed)
}

// Age returns how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Stack = make([]*Frame, len(s.Stack))
	for i, f := range s.Stack {
		cp.Stack[i] = f.clone()
	}
	if s.Config != nil {
		cfg := *s.Config
		cp.Config = &cfg
	}
	return &cp
}

// Normalize repairs cursor values outside their valid range and fills in a
// nil stack. Decoders call it after reading a record.
func (s *Session) Normalize() {
	frames := make([]*Frame, 0, len(s.Stack))
	for _, f := range s.Stack {
		if f == nil {
			continue
		}
		if f.Steps == nil {
			f.Steps = Steps{}
		}
		f.clamp()
		frames = append(frames, f)
	}
	s.Stack = frames
}
