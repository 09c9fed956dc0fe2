package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfErrorFormatting(t *testing.T) {
	cause := errors.New("getBoundingClientRect failed")
	err := NewElementError(ErrCodeLayoutUnavailable, "no layout for <img>", cause).
		WithComponent("optimizer").
		WithContext("src", "/hero.jpg")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_LAYOUT_UNAVAILABLE]")
	assert.Contains(t, msg, "component:optimizer")
	assert.Contains(t, msg, "no layout for <img>")
	assert.Contains(t, msg, "getBoundingClientRect failed")
	assert.Equal(t, "/hero.jpg", err.Context["src"])
	assert.ErrorIs(t, err, cause)
}

func TestPerfErrorIs(t *testing.T) {
	a := NewUnsupportedError(ErrCodeUnsupportedEntryType, "longtask", nil)
	b := NewUnsupportedError(ErrCodeUnsupportedEntryType, "layout-shift", nil)
	c := NewUnsupportedError(ErrCodeUnsupportedFeature, "idle", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))

	wrapped := fmt.Errorf("monitor: %w", a)
	assert.True(t, IsUnsupported(wrapped))
	assert.True(t, IsRecoverable(wrapped))
	assert.False(t, IsElementError(wrapped))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "X", "nothing"))

	base := errors.New("permission denied")
	wrapped := WrapIO(base, ErrCodeFileNotFound, "read page")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeIO, wrapped.Type)
	assert.ErrorIs(t, wrapped, base)

	rewrapped := WrapConfig(wrapped.WithComponent("cli"), ErrCodeConfigInvalid, "load config")
	assert.Equal(t, "cli", rewrapped.Component)
	assert.ErrorIs(t, rewrapped, base)
}

func TestFromPanic(t *testing.T) {
	inner := errors.New("nil map write")
	assert.ErrorIs(t, FromPanic(ErrCodeElementPanic, inner), inner)
	assert.Contains(t, FromPanic(ErrCodeElementPanic, "index out of range").Error(), "index out of range")
}

func TestCombineErrors(t *testing.T) {
	assert.NoError(t, CombineErrors(nil, nil))

	single := errors.New("one")
	assert.Equal(t, single, CombineErrors(nil, single))

	first, second := errors.New("first"), errors.New("second")
	combined := CombineErrors(first, nil, second)
	require.Error(t, combined)
	assert.ErrorIs(t, combined, first)
	assert.ErrorIs(t, combined, second)
	assert.Contains(t, combined.Error(), "2 errors")
}

type recordingLogger struct {
	warns  []string
	errors []string
}

func (r *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.warns = append(r.warns, msg)
}

func (r *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.errors = append(r.errors, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewUnsupportedError(ErrCodeUnsupportedFeature, "idle callbacks", nil))
	handler.Handle(ctx, NewGuardError(ErrCodeFacadeSealed, "facade sealed", nil))
	handler.Handle(ctx, NewIOError(ErrCodeFileNotFound, "missing", nil))
	handler.Handle(ctx, errors.New("plain"))

	assert.Len(t, logger.warns, 2)
	assert.Len(t, logger.errors, 2)
}
