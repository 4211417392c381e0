package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/vibe/internal/sessions/application"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

func TestPrintStatus_RunLine(t *testing.T) {
	tests := []struct {
		name    string
		current domain.StepView
		want    string
	}{
		{
			name:    "guidance that reads like a command",
			current: domain.StepView{WorkflowName: "testing", StepNumber: 1, TotalSteps: 1, StepText: "run go test", Instruction: "run go test", IsCommand: true},
		},
		{
			name:    "explicit command",
			current: domain.StepView{WorkflowName: "testing", StepNumber: 1, TotalSteps: 1, StepText: "tests", Instruction: "tests", IsCommand: true, Command: "go test ./..."},
			want:    "go test ./...",
		},
		{
			name:    "command with working dir",
			current: domain.StepView{WorkflowName: "web", StepNumber: 1, TotalSteps: 1, StepText: "install", Instruction: "install", IsCommand: true, Command: "npm install", WorkingDir: "web"},
			want:    "(cd web && npm install)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			current := tt.current
			printStatus(&buf, application.SessionStatus{
				SessionID: "abc12345",
				Prompt:    "p",
				Depth:     1,
				Stack:     []application.FrameStatus{{Workflow: current.WorkflowName, TotalSteps: 1}},
				Current:   &current,
			})
			if tt.want == "" {
				require.NotContains(t, buf.String(), "Run:")
				return
			}
			require.Contains(t, buf.String(), "Run:")
			require.Contains(t, buf.String(), tt.want)
		})
	}
}
