package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailDoesNotMutateShared(t *testing.T) {
	shared := New(CodeValidationFailed, "validation failed")
	e := shared.WithDetail("frame 7: confidence out of range")

	assert.Equal(t, "frame 7: confidence out of range", e.Detail)
	assert.Empty(t, shared.Detail)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := Wrap(stderrors.New("timeout"), CodeGenerationFailed, "generate draft")
	wrapped := fmt.Errorf("batch 3: %w", base)

	assert.True(t, HasCode(wrapped, CodeGenerationFailed))
	assert.False(t, HasCode(wrapped, CodeRetrievalFailed))
	assert.True(t, IsAppError(wrapped))
	assert.Equal(t, CodeGenerationFailed, AsAppError(wrapped).Code)
}

func TestAsAppErrorFallsBackToUnknown(t *testing.T) {
	e := AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, e.Code)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus)
}

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeReviewLoopExceeded: http.StatusUnprocessableEntity,
		CodeCascadeExhausted:   http.StatusUnprocessableEntity,
		CodeDocumentNotFound:   http.StatusNotFound,
		CodeTooManyRequests:    http.StatusTooManyRequests,
		CodeWebSearchError:     http.StatusBadGateway,
		CodeMessagingError:     http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		assert.Equal(t, want, New(code, "x").HTTPStatus, string(code))
	}
}

func TestErrorStringIncludesDetailAndCause(t *testing.T) {
	e := Wrap(stderrors.New("dial tcp"), CodeVectorDBError, "milvus search").WithDetail("collection rail_reports")
	assert.Equal(t, "[5003] milvus search (collection rail_reports): dial tcp", e.Error())
	assert.Equal(t, http.StatusInternalServerError, StatusOf("9999"))
}
