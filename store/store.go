package store

import "context"

// Attribute is one named wire value of an attribute-store record.
type Attribute struct {
	Name  string `msgpack:"n"`
	Value string `msgpack:"v"`
}

// Record is an attribute-store item together with its attributes.
type Record struct {
	Name       string
	Attributes []Attribute
}

// Object is a blob-store object body and its content type.
type Object struct {
	Body        []byte
	ContentType string
}

// AttributeStore is a low-capacity key/attribute database organised in
// domains. Records are addressed by item name within a domain.
type AttributeStore interface {
	ListDomains(ctx context.Context) ([]string, error)
	CreateDomain(ctx context.Context, name string) error
	DeleteDomain(ctx context.Context, name string) error

	// GetAttributes returns the attributes of an item, or an empty slice if
	// the item does not exist.
	GetAttributes(ctx context.Context, domain, item string) ([]Attribute, error)

	// PutAttributes upserts attrs, replacing any existing value of the same
	// name. Attributes not named in attrs are left alone.
	PutAttributes(ctx context.Context, domain, item string, attrs []Attribute) error
	DeleteAttributes(ctx context.Context, domain, item string) error

	// Select returns the records matching q. The filter is opaque to callers
	// and interpreted by the backend.
	Select(ctx context.Context, domain string, q Query) ([]Record, error)
}

// BlobStore is an object store for large or structured payloads,
// organised in buckets.
type BlobStore interface {
	ListBuckets(ctx context.Context) ([]string, error)
	CreateBucket(ctx context.Context, name string) error

	// DeleteBucket removes every object version in the bucket and then the
	// bucket itself.
	DeleteBucket(ctx context.Context, name string) error

	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error

	// GetObject returns fault.ErrObjectNotFound for a missing key.
	GetObject(ctx context.Context, bucket, key string) (Object, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket string) ([]string, error)
}
