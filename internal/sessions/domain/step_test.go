package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsCommand(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want bool
	}{
		{"run prefix", GuidanceStep("Run the test suite"), true},
		{"git prefix with whitespace", GuidanceStep("  git status"), true},
		{"go prefix", GuidanceStep("go test ./..."), true},
		{"prefix needs trailing space", GuidanceStep("gopher facts"), false},
		{"plain prose", GuidanceStep("Think about edge cases"), false},
		{"structured with command", CommandStep{Guidance: "Lint", Command: "golangci-lint run"}, true},
		{"structured without command", CommandStep{Guidance: "Describe the change"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsCommand(tt.step))
		})
	}
}

func TestRenderStep(t *testing.T) {
	t.Run("command guidance is annotated", func(t *testing.T) {
		got := RenderStep(GuidanceStep("npm install"))
		require.Equal(t, CommandAnnotation+"\n\nnpm install", got)
	})

	t.Run("review guidance is annotated", func(t *testing.T) {
		got := RenderStep(GuidanceStep("Verify that all tests pass"))
		require.Equal(t, ReviewAnnotation+"\n\nVerify that all tests pass", got)
	})

	t.Run("command wins over review wording", func(t *testing.T) {
		got := RenderStep(GuidanceStep("run checks on the build"))
		require.Equal(t, CommandAnnotation+"\n\nrun checks on the build", got)
	})

	t.Run("other guidance is verbatim", func(t *testing.T) {
		require.Equal(t, "Write the design doc", RenderStep(GuidanceStep("Write the design doc")))
	})

	t.Run("structured step returns guidance", func(t *testing.T) {
		step := CommandStep{Guidance: "Run unit tests", Command: "go test ./...", WorkingDir: "/src"}
		require.Equal(t, "Run unit tests", RenderStep(step))
	})
}

func TestSteps_JSONMixedEncoding(t *testing.T) {
	steps := Steps{
		GuidanceStep("Read the README"),
		CommandStep{Guidance: "Build", Command: "make build", WorkingDir: "."},
	}

	data, err := json.Marshal(steps)
	require.NoError(t, err)
	require.JSONEq(t, `["Read the README",{"step":"Build","command":"make build","working_dir":"."}]`, string(data))

	var decoded Steps
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, steps, decoded)
}

func TestSteps_UnmarshalRejectsEmptyObject(t *testing.T) {
	var decoded Steps
	err := json.Unmarshal([]byte(`["ok", {}]`), &decoded)
	require.Error(t, err)
	require.Contains(t, err.Error(), "step 1")
}

func TestSteps_UnmarshalRejectsWrongShape(t *testing.T) {
	var decoded Steps
	require.Error(t, json.Unmarshal([]byte(`["ok", 42]`), &decoded))
	require.Error(t, json.Unmarshal([]byte(`{"not":"a list"}`), &decoded))
}
