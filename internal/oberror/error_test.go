package oberror_test

import (
	"testing"

	"github.com/festbuddy/offlinebox/internal/oberror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestOBError(t *testing.T) {
	err := oberror.New("some message")

	assert.Equal(t, "some message", err.Error())
}

func TestTaxonomy(t *testing.T) {
	err := oberror.StorageUnavailable(errors.New("engine refused to open"))
	assert.True(t, oberror.IsStorageUnavailable(err))
	assert.False(t, oberror.IsNotFound(err))
	assert.Equal(t, 503, oberror.StatusCode(err))

	err = oberror.NotFound("post draft")
	assert.True(t, oberror.IsNotFound(err))
	assert.Equal(t, "post draft not found", err.Error())
	assert.Equal(t, 404, oberror.StatusCode(err))

	err = oberror.KindMismatch("post", "comment")
	assert.True(t, oberror.IsKindMismatch(err))
	assert.Equal(t, 409, oberror.StatusCode(err))
}

func TestTaxonomyThroughWrapping(t *testing.T) {
	err := errors.Wrap(oberror.NotFound("comment draft"), "could not update")

	assert.True(t, oberror.IsNotFound(err))
	assert.Equal(t, 404, oberror.StatusCode(err))
}

func TestStatusCodeFallback(t *testing.T) {
	assert.Equal(t, 500, oberror.StatusCode(errors.New("boom")))
}
