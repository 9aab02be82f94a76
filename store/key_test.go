package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
)

func TestBlobKey(t *testing.T) {
	key := store.BlobKey("invoice-7", "body")
	assert.Equal(t, "data/body/invoice-7", key)

	doc, item, err := store.ParseBlobKey(key)
	require.NoError(t, err)
	assert.Equal(t, "invoice-7", doc)
	assert.Equal(t, "body", item)

	// Document names may contain the separator; item names may not.
	doc, item, err = store.ParseBlobKey(store.BlobKey("a/b", "body"))
	require.NoError(t, err)
	assert.Equal(t, "a/b", doc)
	assert.Equal(t, "body", item)

	for _, bad := range []string{"", "data/", "data/body", "data//doc", "system/body/doc"} {
		_, _, err := store.ParseBlobKey(bad)
		assert.ErrorIs(t, err, fault.ErrInvalidBlobKey, bad)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "sales.tierdoc.db", store.BucketName("sales"))
	assert.Equal(t, "data/", store.FolderKey(store.DATA_FOLDER))
	assert.True(t, store.ValidItemName("body"))
	assert.False(t, store.ValidItemName(""))
	assert.False(t, store.ValidItemName("a/b"))
}

func TestQueryExpression(t *testing.T) {
	assert.Equal(t, "select * from `d`", store.Query{}.SelectExpression("d"))
	assert.Equal(t, "select * from `d` where a = '1' limit 5",
		store.Query{Filter: "a = '1'", Limit: 5}.SelectExpression("d"))
	assert.Equal(t, "select * from `we``ird` limit 2", store.Query{Limit: 2}.SelectExpression("we`ird"))
}
