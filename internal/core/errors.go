package core

import (
	"errors"

	"github.com/astrotv/astrotv-server/internal/proto"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func (e *CoreError) frame() proto.Error {
	return proto.Error{Code: e.Code, Message: e.Message}
}

var (
	errJoinFieldsRequired = coreError(proto.CodeBadRequest, "credential and broadcasterHandle are required")
	errInvalidCredential  = coreError(proto.CodeUnauthorized, "invalid credential")
	errStreamNotFound     = coreError(proto.CodeNotFound, "stream not found")
	errUserNotFound       = coreError(proto.CodeNotFound, "user not found")
	errJoinFailed         = coreError(proto.CodeInternal, "failed to join chat")
	errNotJoined          = coreError(proto.CodeNotJoined, "join a chat first")
	errEmptyMessage       = coreError(proto.CodeBadRequest, "message cannot be empty")
	errRateLimited        = coreError(proto.CodeRateLimited, "you are sending messages too fast")
	errSendFailed         = coreError(proto.CodeInternal, "failed to send message")
	errTerminated         = coreError(proto.CodeTerminated, "session is terminated")
	errUnknownType        = coreError(proto.CodeBadRequest, "unknown message type")
	errMalformedFrame     = coreError(proto.CodeBadRequest, "malformed message")
)

// DecodeError maps a proto decode failure to the error frame sent back.
func DecodeError(err error) proto.Error {
	if errors.Is(err, proto.ErrUnknownType) {
		return errUnknownType.frame()
	}
	return errMalformedFrame.frame()
}
