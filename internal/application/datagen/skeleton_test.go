package datagen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evocode-datagen/internal/engine"
)

const validSkeleton = `def binary_search(nums: list, target: int) -> int:
    """Find target in a sorted list.

    Args:
        nums: Sorted list of integers.
        target: Value to locate.

    Returns:
        Index of target, or -1 if absent.
    """`

func TestExtractFunctionName(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"simple", "def binary_search(nums):", "binary_search"},
		{"leading comment", "# helper\ndef count_pairs(a, b):", "count_pairs"},
		{"underscore prefix", "def _hidden(x):", "_hidden"},
		{"space before paren", "def solve (n):", "solve"},
		{"uppercase rejected", "def BinarySearch(n):", ""},
		{"no def", "binary_search(nums)", ""},
		{"indented def ignored", "    def inner(x):", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFunctionName(tt.code))
		})
	}
}

func TestSkeletonValidateAccept(t *testing.T) {
	s := NewSkeletonStrategy(nil)

	v := s.Validate(engine.Source{}, validSkeleton+"\n")
	require.Equal(t, engine.VerdictAccept, v.Verdict)

	assert.Equal(t, "binary_search", v.Fields["function_name"])
	assert.Equal(t, true, v.Fields["valid"])
	assert.Equal(t, strings.TrimSpace(validSkeleton), v.Fields["skeleton_code"])
}

func TestSkeletonValidateInvalidSyntaxStillAccepted(t *testing.T) {
	s := NewSkeletonStrategy(nil)

	// 语法不合法的骨架照样入库，带 valid=false 标记
	v := s.Validate(engine.Source{}, "def broken(:\n    pass")
	require.Equal(t, engine.VerdictAccept, v.Verdict)
	assert.Equal(t, false, v.Fields["valid"])
}

func TestSkeletonValidateEmptyDiscarded(t *testing.T) {
	s := NewSkeletonStrategy(nil)

	v := s.Validate(engine.Source{}, "   \n  ")
	assert.Equal(t, engine.VerdictDiscard, v.Verdict)
}

func TestSkeletonBuildRequest(t *testing.T) {
	s := NewSkeletonStrategy(nil)

	req, err := s.BuildRequest(engine.Source{Fields: map[string]any{
		"problem_text": "Given a sorted list, find the target index.",
	}})
	require.NoError(t, err)
	assert.Contains(t, req.Prompt, "Given a sorted list, find the target index.")
	assert.NotContains(t, req.Prompt, "{{problem}}")
}

func TestSkeletonBuildRequestCustomTemplate(t *testing.T) {
	s := NewSkeletonStrategy(map[string]string{"template": "PROBLEM>> {{problem}} <<"})

	req, err := s.BuildRequest(engine.Source{Fields: map[string]any{"problem_text": "sum two numbers"}})
	require.NoError(t, err)
	assert.Equal(t, "PROBLEM>> sum two numbers <<", req.Prompt)
}
