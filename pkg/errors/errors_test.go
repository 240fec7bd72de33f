package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		msg      string
		expected string
	}{
		{name: "nil error", err: nil, msg: "context", expected: ""},
		{name: "standard error", err: stderrors.New("boom"), msg: "context", expected: "context: boom"},
		{name: "empty message", err: stderrors.New("boom"), msg: "", expected: ": boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Wrap(tt.err, tt.msg)
			if tt.err == nil {
				assert.NoError(t, result)
				return
			}
			assert.Equal(t, tt.expected, result.Error())
			assert.ErrorIs(t, result, tt.err)
		})
	}
}

func TestWrapf(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrapf(base, "fetching %s (%d)", "repo", 3)
	assert.Equal(t, "fetching repo (3): boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.NoError(t, Wrapf(nil, "ignored %d", 1))
}

func TestKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		kind   Kind
		text   string
	}{
		{
			name:   "io",
			err:    IO("open", "/var/db/pkg/local.sqlite", os.ErrNotExist),
			target: ErrIO,
			kind:   KindIO,
			text:   "open /var/db/pkg/local.sqlite: file does not exist",
		},
		{
			name:   "parse",
			err:    Parse("digest line", "3", fmt.Errorf("missing offset")),
			target: ErrParse,
			kind:   KindParse,
			text:   "digest line 3: missing offset",
		},
		{
			name:   "integrity without op",
			err:    Integrity("", "", fmt.Errorf("no signature")),
			target: ErrIntegrity,
			kind:   KindIntegrity,
			text:   "integrity error: no signature",
		},
		{
			name:   "permission",
			err:    Permission("write catalog", "/var/db/pkg", nil),
			target: ErrPermission,
			kind:   KindPermission,
			text:   "write catalog /var/db/pkg",
		},
		{
			name:   "not found",
			err:    NotFound("dependency", "ports-mgmt/pkg", nil),
			target: ErrNotFound,
			kind:   KindNotFound,
			text:   "dependency ports-mgmt/pkg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.err.Error())
			assert.ErrorIs(t, tt.err, tt.target)

			wrapped := Wrap(tt.err, "outer")
			kind, ok := KindOf(wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.ErrorIs(t, wrapped, tt.target)
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	err := Parse("manifest", "", nil)
	assert.NotErrorIs(t, err, ErrIO)
	assert.NotErrorIs(t, err, ErrNothingToDo)

	_, ok := KindOf(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestIsMatchesOperation(t *testing.T) {
	err := IO("rename", "a", os.ErrPermission)
	assert.ErrorIs(t, err, &Error{Kind: KindIO, Op: "rename"})
	assert.NotErrorIs(t, err, &Error{Kind: KindIO, Op: "open"})
	assert.ErrorIs(t, err, os.ErrPermission)
}
