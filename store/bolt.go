package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guyvdb/tierdoc/fault"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// BoltStore implements both store interfaces on a single BoltDB file.
var _ AttributeStore = (*BoltStore)(nil)
var _ BlobStore = (*BoltStore)(nil)

const (
	domainPrefix = "Domain."
	bucketPrefix = "Bucket."
)

// BoltStore is an embedded backend. Every attribute-store domain and every
// blob-store bucket is a top-level bolt bucket; records and objects are
// msgpack encoded. It is strongly consistent, so reads observe writes
// immediately.
type BoltStore struct {
	db *bbolt.DB
}

type storedObject struct {
	Body        []byte `msgpack:"b"`
	ContentType string `msgpack:"t"`
}

// NewBoltStore creates and returns a new BoltStore.
// It takes the path to the BoltDB file.
func NewBoltStore(path string) (*BoltStore, error) {

	slog.Debug("NewBoltStore - create bolt store", "path", path)

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (bs *BoltStore) listPrefixed(prefix string) ([]string, error) {
	names := make([]string, 0)
	err := bs.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			if n, ok := strings.CutPrefix(string(name), prefix); ok {
				names = append(names, n)
			}
			return nil
		})
	})
	return names, err
}

// ListDomains returns the names of all domains.
func (bs *BoltStore) ListDomains(ctx context.Context) ([]string, error) {
	return bs.listPrefixed(domainPrefix)
}

// CreateDomain creates a domain. Creating an existing domain is a no-op.
func (bs *BoltStore) CreateDomain(ctx context.Context, name string) error {
	slog.Debug("BoltStore.CreateDomain() - create domain", "domain", name)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(domainPrefix + name)); err != nil {
			return fmt.Errorf("%w: %s: %v", fault.ErrDomainCreateFailed, name, err)
		}
		return nil
	})
}

// DeleteDomain removes a domain and every record in it. Deleting a missing
// domain is a no-op.
func (bs *BoltStore) DeleteDomain(ctx context.Context, name string) error {
	slog.Debug("BoltStore.DeleteDomain() - delete domain", "domain", name)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(domainPrefix + name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func domainBucket(tx *bbolt.Tx, domain string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(domainPrefix + domain))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", fault.ErrDomainNotFound, domain)
	}
	return b, nil
}

func decodeAttributes(data []byte) ([]Attribute, error) {
	var attrs []Attribute
	if err := msgpack.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUnmarshalFailed, err)
	}
	return attrs, nil
}

// GetAttributes returns the attributes of an item in stored order.
func (bs *BoltStore) GetAttributes(ctx context.Context, domain, item string) ([]Attribute, error) {
	attrs := make([]Attribute, 0)
	err := bs.db.View(func(tx *bbolt.Tx) error {
		b, err := domainBucket(tx, domain)
		if err != nil {
			return err
		}
		val := b.Get([]byte(item))
		if val == nil {
			return nil
		}
		attrs, err = decodeAttributes(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// PutAttributes merges attrs into the stored record, replacing values of the
// same name and appending new ones.
func (bs *BoltStore) PutAttributes(ctx context.Context, domain, item string, attrs []Attribute) error {
	slog.Debug("BoltStore.PutAttributes() - put attributes", "domain", domain, "item", item, "count", len(attrs))
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b, err := domainBucket(tx, domain)
		if err != nil {
			return err
		}

		var current []Attribute
		if val := b.Get([]byte(item)); val != nil {
			if current, err = decodeAttributes(val); err != nil {
				return err
			}
		}

		for _, a := range attrs {
			replaced := false
			for i := range current {
				if current[i].Name == a.Name {
					current[i].Value = a.Value
					replaced = true
					break
				}
			}
			if !replaced {
				current = append(current, a)
			}
		}

		data, err := msgpack.Marshal(current)
		if err != nil {
			return fmt.Errorf("%w: %v", fault.ErrMarshalFailed, err)
		}
		return b.Put([]byte(item), data)
	})
}

// DeleteAttributes removes an item and all of its attributes.
func (bs *BoltStore) DeleteAttributes(ctx context.Context, domain, item string) error {
	slog.Debug("BoltStore.DeleteAttributes() - delete item", "domain", domain, "item", item)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b, err := domainBucket(tx, domain)
		if err != nil {
			return err
		}
		return b.Delete([]byte(item))
	})
}

// Select scans the domain in item-name order. The filter is a gval
// expression over the record's wire attributes, with the item name bound to
// ITEM_NAME_PARAMETER, for example `kind == "invoice" && itemName != "x"`.
func (bs *BoltStore) Select(ctx context.Context, domain string, q Query) ([]Record, error) {
	f, err := compileFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	err = bs.db.View(func(tx *bbolt.Tx) error {
		b, err := domainBucket(tx, domain)
		if err != nil {
			return err
		}

		cursor := b.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			attrs, err := decodeAttributes(v)
			if err != nil {
				return err
			}
			// Keys are only valid for the lifetime of the transaction.
			r := Record{Name: string(bytes.Clone(k)), Attributes: attrs}
			if !f.match(ctx, r) {
				continue
			}
			records = append(records, r)
			if q.Limit > 0 && len(records) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListBuckets returns the names of all blob buckets.
func (bs *BoltStore) ListBuckets(ctx context.Context) ([]string, error) {
	return bs.listPrefixed(bucketPrefix)
}

// CreateBucket creates a blob bucket. Creating an existing bucket is a no-op.
func (bs *BoltStore) CreateBucket(ctx context.Context, name string) error {
	slog.Debug("BoltStore.CreateBucket() - create bucket", "bucket", name)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketPrefix + name)); err != nil {
			return fmt.Errorf("%w: %s: %v", fault.ErrBucketCreateFailed, name, err)
		}
		return nil
	})
}

// DeleteBucket deletes every object in the bucket, then the bucket.
func (bs *BoltStore) DeleteBucket(ctx context.Context, name string) error {
	slog.Debug("BoltStore.DeleteBucket() - delete bucket", "bucket", name)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b, err := blobBucket(tx, name)
		if err != nil {
			return err
		}

		keys := make([][]byte, 0)
		cursor := b.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			keys = append(keys, bytes.Clone(k))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete object %s from bucket %s: %w", string(k), name, err)
			}
		}
		slog.Debug("BoltStore.DeleteBucket() - deleted objects", "bucket", name, "count", len(keys))

		return tx.DeleteBucket([]byte(bucketPrefix + name))
	})
}

func blobBucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(bucketPrefix + name))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", fault.ErrBucketNotFound, name)
	}
	return b, nil
}

// PutObject stores an object, replacing any object under the same key.
func (bs *BoltStore) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	slog.Debug("BoltStore.PutObject() - put object", "bucket", bucket, "key", key, "size", len(body), "contentType", contentType)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b, err := blobBucket(tx, bucket)
		if err != nil {
			return err
		}
		data, err := msgpack.Marshal(&storedObject{Body: body, ContentType: contentType})
		if err != nil {
			return fmt.Errorf("%w: %v", fault.ErrMarshalFailed, err)
		}
		return b.Put([]byte(key), data)
	})
}

// GetObject retrieves an object by key.
func (bs *BoltStore) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	var obj Object
	err := bs.db.View(func(tx *bbolt.Tx) error {
		b, err := blobBucket(tx, bucket)
		if err != nil {
			return err
		}
		val := b.Get([]byte(key))
		if val == nil {
			return fmt.Errorf("%w: %s/%s", fault.ErrObjectNotFound, bucket, key)
		}
		var stored storedObject
		if err := msgpack.Unmarshal(val, &stored); err != nil {
			return fmt.Errorf("%w: %v", fault.ErrUnmarshalFailed, err)
		}
		obj = Object{Body: stored.Body, ContentType: stored.ContentType}
		return nil
	})
	return obj, err
}

// DeleteObject removes an object. Deleting a missing key is a no-op.
func (bs *BoltStore) DeleteObject(ctx context.Context, bucket, key string) error {
	slog.Debug("BoltStore.DeleteObject() - delete object", "bucket", bucket, "key", key)
	return bs.db.Update(func(tx *bbolt.Tx) error {
		b, err := blobBucket(tx, bucket)
		if err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

// ListObjects returns every key in the bucket in key order.
func (bs *BoltStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	keys := make([]string, 0)
	err := bs.db.View(func(tx *bbolt.Tx) error {
		b, err := blobBucket(tx, bucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the BoltDB database.
func (bs *BoltStore) Close() error {
	slog.Debug("BoltStore.Close() - close db")
	if bs.db != nil {
		return bs.db.Close()
	}
	return nil
}
