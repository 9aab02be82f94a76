package store

import "context"

// Binding is the view of both stores that one database sees: a single
// attribute-store domain and a single blob-store bucket.
type Binding struct {
	Attrs  AttributeStore
	Blobs  BlobStore
	Domain string
	Bucket string
}

// Bind returns the binding for the named database.
func Bind(attrs AttributeStore, blobs BlobStore, database string) *Binding {
	return &Binding{Attrs: attrs, Blobs: blobs, Domain: database, Bucket: BucketName(database)}
}

func (b *Binding) GetAttributes(ctx context.Context, document string) ([]Attribute, error) {
	return b.Attrs.GetAttributes(ctx, b.Domain, document)
}

func (b *Binding) PutAttributes(ctx context.Context, document string, attrs []Attribute) error {
	return b.Attrs.PutAttributes(ctx, b.Domain, document, attrs)
}

func (b *Binding) DeleteAttributes(ctx context.Context, document string) error {
	return b.Attrs.DeleteAttributes(ctx, b.Domain, document)
}

func (b *Binding) Select(ctx context.Context, q Query) ([]Record, error) {
	return b.Attrs.Select(ctx, b.Domain, q)
}

func (b *Binding) GetObject(ctx context.Context, key string) (Object, error) {
	return b.Blobs.GetObject(ctx, b.Bucket, key)
}

func (b *Binding) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	return b.Blobs.PutObject(ctx, b.Bucket, key, body, contentType)
}

func (b *Binding) DeleteObject(ctx context.Context, key string) error {
	return b.Blobs.DeleteObject(ctx, b.Bucket, key)
}

func (b *Binding) ListObjects(ctx context.Context) ([]string, error) {
	return b.Blobs.ListObjects(ctx, b.Bucket)
}
