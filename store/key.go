package store

import (
	"fmt"
	"strings"

	"github.com/guyvdb/tierdoc/fault"
)

const (
	SYSTEM_FOLDER string = "system"
	DATA_FOLDER   string = "data"

	BUCKET_SUFFIX string = ".tierdoc.db"
)

// BlobKey is the key of the externalized payload of an item. It depends
// only on the document and item names.
func BlobKey(document, item string) string {
	return DATA_FOLDER + "/" + item + "/" + document
}

// ParseBlobKey splits a key produced by BlobKey back into its document and
// item names.
func ParseBlobKey(key string) (document string, item string, err error) {
	rest, ok := strings.CutPrefix(key, DATA_FOLDER+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: expected %s/<item>/<document>, got '%s'", fault.ErrInvalidBlobKey, DATA_FOLDER, key)
	}
	item, document, ok = strings.Cut(rest, "/")
	if !ok || item == "" || document == "" {
		return "", "", fmt.Errorf("%w: expected %s/<item>/<document>, got '%s'", fault.ErrInvalidBlobKey, DATA_FOLDER, key)
	}
	return document, item, nil
}

// FolderKey is the key of a folder marker object.
func FolderKey(folder string) string {
	return folder + "/"
}

// BucketName derives the blob-store bucket backing a database.
func BucketName(database string) string {
	return database + BUCKET_SUFFIX
}

// ValidItemName reports whether name can be used as an item name. Item
// names are part of blob keys and so cannot contain the separator.
func ValidItemName(name string) bool {
	return name != "" && !strings.Contains(name, "/")
}
