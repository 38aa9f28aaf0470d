package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Session.Send", ErrTimeout, "browsingContext.navigate")
	want := "Session.Send: browsingContext.navigate: command timed out"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Session.New", ErrSessionFailed, "")
	want := "Session.New: session initialization failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Session.Send", ErrTimeout, "")
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is should match ErrTimeout")
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout should report true")
	}
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	err := WrapOp("op", ErrConnectionClosed)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, "op: connection closed", err.Error())
}

func TestParseErrorCode(t *testing.T) {
	code, ok := ParseErrorCode("no such frame")
	assert.True(t, ok)
	assert.Equal(t, ErrorCodeNoSuchFrame, code)

	code, ok = ParseErrorCode("made up error")
	assert.False(t, ok)
	assert.Equal(t, ErrorCodeUnknownError, code)
}

func TestErrorCodeSetIsClosed(t *testing.T) {
	assert.Len(t, knownErrorCodes, 29)
	for code := range knownErrorCodes {
		got, ok := ParseErrorCode(string(code))
		assert.True(t, ok, "code %q", code)
		assert.Equal(t, code, got)
	}
}

func TestErrorCodeUnmarshalUnknown(t *testing.T) {
	var code ErrorCode
	require.NoError(t, json.Unmarshal([]byte(`"brand new failure"`), &code))
	assert.Equal(t, ErrorCodeUnknownError, code)

	require.NoError(t, json.Unmarshal([]byte(`"invalid argument"`), &code))
	assert.Equal(t, ErrorCodeInvalidArgument, code)
}

func TestRemoteErrorMatching(t *testing.T) {
	var err error = &RemoteError{Code: ErrorCodeNoSuchFrame, Message: "frame gone"}
	wrapped := fmt.Errorf("navigate: %w", err)

	assert.ErrorIs(t, wrapped, ErrRemote)
	assert.ErrorIs(t, wrapped, ErrorCodeNoSuchFrame)
	assert.NotErrorIs(t, wrapped, ErrorCodeInvalidArgument)
	assert.NotErrorIs(t, wrapped, ErrTimeout)

	code, ok := RemoteErrorCode(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeNoSuchFrame, code)

	_, ok = RemoteErrorCode(ErrTimeout)
	assert.False(t, ok)
}

func TestRemoteErrorFormat(t *testing.T) {
	err := &RemoteError{Code: ErrorCodeUnknownCommand}
	assert.Equal(t, "remote error: unknown command", err.Error())

	err.Message = "foo.bar"
	assert.Equal(t, "remote error: unknown command: foo.bar", err.Error())
}

func TestTimeoutDistinctFromRemote(t *testing.T) {
	assert.False(t, IsTimeout(&RemoteError{Code: ErrorCodeUnknownError}))
	assert.NotErrorIs(t, ErrTimeout, ErrRemote)
}
