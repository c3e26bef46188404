package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeNotPending, "request already decided")
		assert.True(t, HasCode(err, CodeNotPending))
		assert.False(t, HasCode(err, CodeNotApproved))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("decide: %w", New(CodeForbidden, "not owner"))
		assert.True(t, HasCode(err, CodeForbidden))
		assert.Equal(t, CodeForbidden, CodeOf(err))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeSubstrateUnavailable, "ledger unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger unavailable", MessageOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClassOf_DistinguishesCallerActions(t *testing.T) {
	assert.Equal(t, ClassNotAllowed, ClassOf(CodeForbidden))
	assert.Equal(t, ClassNotAllowed, ClassOf(CodeSelfAccessDenied))
	assert.Equal(t, ClassBadState, ClassOf(CodeNotPending))
	assert.Equal(t, ClassBadState, ClassOf(CodeNotApproved))
	assert.Equal(t, ClassBadState, ClassOf(CodeDuplicateRequest))
	assert.Equal(t, ClassMissing, ClassOf(CodeNotFound))
	assert.Equal(t, ClassMissing, ClassOf(CodeUnresolvedIdentity))
	assert.Equal(t, ClassMalformed, ClassOf(CodeInvalidInput))
	assert.Equal(t, ClassTransient, ClassOf(CodeSubstrateUnavailable))
	assert.Equal(t, ClassInternal, ClassOf(Code("made_up")))
}
