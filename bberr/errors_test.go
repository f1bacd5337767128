package bberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("short read")
	err := New(UnexpectedEOF, "ordio.readU32", cause)
	wrapped := fmt.Errorf("reading header: %w", err)

	assert.True(t, Is(wrapped, UnexpectedEOF))
	assert.False(t, Is(wrapped, BadMagic))
}

func TestErrorMessageIncludesOpAndKind(t *testing.T) {
	err := New(BadMagic, "bigbin.Open", nil)
	assert.Contains(t, err.Error(), "bigbin.Open")
	assert.Contains(t, err.Error(), "bad magic")
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(IO, "ordio.Read", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
