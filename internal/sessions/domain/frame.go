package domain

// Frame is one workflow on a session's stack, with a cursor into its steps.
//
// CurrentStep is 0-based and always within [0, len(Steps)]; the frame is
// complete when the cursor equals len(Steps).
type Frame struct {
	WorkflowName string         `json:"workflow_name"`
	Steps        Steps          `json:"steps"`
	CurrentStep  int            `json:"current_step"`
	Context      map[string]any `json:"context,omitempty"`
}

// NewFrame returns a frame positioned at its first step.
func NewFrame(name string, steps []Step, context map[string]any) *Frame {
	cp := make(Steps, len(steps))
	copy(cp, steps)
	return &Frame{
		WorkflowName: name,
		Steps:        cp,
		Context:      context,
	}
}

// IsComplete reports whether every step has been advanced past.
func (f *Frame) IsComplete() bool {
	return f.CurrentStep >= len(f.Steps)
}

// Current returns the step under the cursor.
func (f *Frame) Current() (Step, bool) {
	if f.IsComplete() {
		return nil, false
	}
	return f.Steps[f.CurrentStep], true
}

// CurrentStepText returns the rendered instruction for the current step.
// The boolean is false when the frame is complete.
func (f *Frame) CurrentStepText() (string, bool) {
	step, ok := f.Current()
	if !ok {
		return "", false
	}
	return RenderStep(step), true
}

// IsCommand reports whether the current step is a command. A complete frame
// has no command.
func (f *Frame) IsCommand() bool {
	step, ok := f.Current()
	return ok && IsCommand(step)
}

// Advance moves the cursor forward one step. It returns false, leaving the
// frame untouched, when the frame is already complete.
func (f *Frame) Advance() bool {
	if f.IsComplete() {
		return false
	}
	f.CurrentStep++
	return true
}

// Back moves the cursor back one step. It returns false at the first step.
func (f *Frame) Back() bool {
	if f.CurrentStep <= 0 {
		return false
	}
	f.CurrentStep--
	return true
}

// clamp restores the cursor invariant after decoding untrusted records.
func (f *Frame) clamp() {
	if f.CurrentStep < 0 {
		f.CurrentStep = 0
	}
	if f.CurrentStep > len(f.Steps) {
		f.CurrentStep = len(f.Steps)
	}
}

func (f *Frame) clone() *Frame {
	cp := *f
	cp.Steps = make(Steps, len(f.Steps))
	copy(cp.Steps, f.Steps)
	if f.Context != nil {
		cp.Context = make(map[string]any, len(f.Context))
		for k, v := range f.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}
