package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := E(KindNotFound, "GetNote", errors.New("no rows"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidOperation))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := E(KindInternal, "op", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKindOf_UnclassifiedIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestError_Messages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrCycleDetected, "cycle detected"},
		{E(KindCodec, "", errors.New("bad base64")), "codec error: bad base64"},
		{E(KindInvalidOperation, "DeleteFolder", nil), "DeleteFolder: invalid operation"},
		{E(KindCrypto, "Encrypt", errors.New("short key")), "Encrypt: crypto error: short key"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
