package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorMessage(t *testing.T) {
	err := New(KindSchemaDrift, "column not found").
		AddDataset("acs").
		AddYear(2019).
		AddEntity("person").
		AddColumn("PWGTP")

	assert.Equal(t, "dataset 'acs' -> year '2019' -> entity 'person' -> column 'PWGTP': column not found", err.Error())

	bare := New(KindIO, "disk full")
	assert.Equal(t, "disk full", bare.Error())
}

func TestWrapKeepsContext(t *testing.T) {
	inner := New(KindReferentialDefect, "missing household").AddDataset("acs")
	wrapped := fmt.Errorf("generate: %w", inner)

	err := Wrap(KindIO, wrapped)
	assert.Same(t, inner, err)
	assert.Equal(t, KindReferentialDefect, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindReferentialDefect))
	assert.True(t, IsPipelineError(wrapped))

	assert.Nil(t, Wrap(KindIO, nil))
}

func TestUnwrap(t *testing.T) {
	err := Wrap(KindIO, fs.ErrNotExist)
	assert.True(t, stderrors.Is(err, fs.ErrNotExist))

	err = Newf(KindMissingUpstream, "raw extract for %d: %w", 2019, fs.ErrNotExist)
	assert.True(t, stderrors.Is(err, fs.ErrNotExist))
	assert.Equal(t, "raw extract for 2019: file does not exist", err.Message)
}

func TestToHTTPError(t *testing.T) {
	t.Run("maps kinds to status codes", func(t *testing.T) {
		cases := map[Kind]int{
			KindNotFound:          http.StatusNotFound,
			KindConflict:          http.StatusConflict,
			KindConfiguration:     http.StatusBadRequest,
			KindSchemaDrift:       http.StatusUnprocessableEntity,
			KindReferentialDefect: http.StatusUnprocessableEntity,
			KindIO:                http.StatusInternalServerError,
		}
		for kind, code := range cases {
			err := ToHTTPError(New(kind, "boom"))
			require.True(t, httperror.IsHTTPError(err))
			assert.Equal(t, code, httperror.GetStatusCode(err), string(kind))
		}
	})

	t.Run("leaves other errors alone", func(t *testing.T) {
		plain := stderrors.New("plain")
		assert.Same(t, plain, ToHTTPError(plain))
	})
}
