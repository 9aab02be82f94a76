// Package database binds a logical database name to an attribute-store
// domain and a blob-store bucket, and exposes document operations over them.
//
// A database is guarded by a reserved root document, ROOT_DOCUMENT_NAME,
// whose ROOT_DATABASE_ITEM item holds the database name. Open refuses to
// proceed unless that item is present and matches, which protects against
// reading a foreign or not yet propagated domain.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/guyvdb/tierdoc/document"
	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
	"github.com/guyvdb/tierdoc/types"
)

const (
	ROOT_DOCUMENT_NAME string = "@root"
	ROOT_DATABASE_ITEM string = "database"
)

const (
	DefaultPropagationTimeout  = 30 * time.Second
	DefaultPropagationInterval = 200 * time.Millisecond
)

// Database is one logical database. Administrative operations are
// serialized; documents returned from it are not safe for concurrent use.
type Database struct {
	attrs  store.AttributeStore
	blobs  store.BlobStore
	logger *slog.Logger

	propagationTimeout  time.Duration
	propagationInterval time.Duration

	mu        sync.Mutex // guards the fields below
	domains   map[string]struct{}
	buckets   map[string]struct{}
	name      string
	binding   *store.Binding
	root      *document.Document
	connected bool
	open      bool
}

type Option func(*Database)

// WithLogger sets the logger used for lifecycle failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithPropagation bounds how long Init waits for the stores to show the
// root document, and the first interval between attempts.
func WithPropagation(timeout, interval time.Duration) Option {
	return func(d *Database) {
		d.propagationTimeout = timeout
		d.propagationInterval = interval
	}
}

// New creates a database handle over the two stores. It does not contact
// either store.
func New(attrs store.AttributeStore, blobs store.BlobStore, opts ...Option) *Database {
	d := &Database{
		attrs:               attrs,
		blobs:               blobs,
		logger:              slog.Default(),
		propagationTimeout:  DefaultPropagationTimeout,
		propagationInterval: DefaultPropagationInterval,
		domains:             make(map[string]struct{}),
		buckets:             make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Database) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

func (d *Database) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Database) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Root returns the root document of an open database.
func (d *Database) Root() *document.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// Connect reaches both stores and refreshes the caches of existing domains
// and buckets used by the idempotent create checks.
func (d *Database) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked(ctx)
}

func (d *Database) connectLocked(ctx context.Context) error {
	d.connected = false

	domains, err := d.attrs.ListDomains(ctx)
	if err != nil {
		d.logger.Error("cannot get list of domains", "err", err)
		return fmt.Errorf("connecting to attribute store: %w", err)
	}
	buckets, err := d.blobs.ListBuckets(ctx)
	if err != nil {
		d.logger.Error("cannot get list of buckets", "err", err)
		return fmt.Errorf("connecting to blob store: %w", err)
	}

	d.domains = make(map[string]struct{}, len(domains))
	for _, n := range domains {
		d.domains[n] = struct{}{}
	}
	d.buckets = make(map[string]struct{}, len(buckets))
	for _, n := range buckets {
		d.buckets[n] = struct{}{}
	}
	d.connected = true
	d.logger.Debug("Database.Connect() - connected", "domains", len(domains), "buckets", len(buckets))
	return nil
}

func (d *Database) ensureConnected(ctx context.Context) error {
	if d.connected {
		return nil
	}
	return d.connectLocked(ctx)
}

// Disconnect forgets the caches and closes the database.
func (d *Database) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.domains = make(map[string]struct{})
	d.buckets = make(map[string]struct{})
	d.connected = false
	d.open = false
	d.root = nil
	d.binding = nil
}

// Close is Disconnect, for use with defer.
func (d *Database) Close() error {
	d.Disconnect()
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty database name", fault.ErrInvalidDatabaseName)
	}
	return nil
}

// Init creates the database: domain, root document, bucket and its folder
// markers, then waits for the stores to serve the root document and opens
// the database. Existing domains and buckets are reused.
func (d *Database) Init(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		d.logger.Error("cannot init database", "err", err)
		return err
	}
	if err := d.create(ctx, name); err != nil {
		return err
	}
	return d.awaitOpen(ctx, name)
}

func (d *Database) create(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureConnected(ctx); err != nil {
		return err
	}
	if err := d.ensureDomain(ctx, name); err != nil {
		return err
	}

	binding := store.Bind(d.attrs, d.blobs, name)
	root := document.New(ROOT_DOCUMENT_NAME, binding, d.logger)
	if _, err := root.Set(ROOT_DATABASE_ITEM, types.TextValue(name)); err != nil {
		return err
	}
	if err := root.Save(ctx); err != nil {
		d.logger.Error("cannot create root document", "database", name, "err", err)
		return fmt.Errorf("creating root document for %s: %w", name, err)
	}

	if err := d.ensureBucket(ctx, binding.Bucket); err != nil {
		return err
	}
	for _, folder := range []string{store.SYSTEM_FOLDER, store.DATA_FOLDER} {
		if err := d.blobs.PutObject(ctx, binding.Bucket, store.FolderKey(folder), []byte(folder), ""); err != nil {
			d.logger.Error("cannot create folder", "bucket", binding.Bucket, "folder", folder, "err", err)
			return fmt.Errorf("creating folder %s in bucket %s: %w", folder, binding.Bucket, err)
		}
	}
	return nil
}

func (d *Database) ensureDomain(ctx context.Context, name string) error {
	if _, ok := d.domains[name]; ok {
		return nil
	}
	if err := d.attrs.CreateDomain(ctx, name); err != nil {
		d.logger.Error("cannot create domain", "domain", name, "err", err)
		return err
	}
	d.domains[name] = struct{}{}
	return nil
}

func (d *Database) ensureBucket(ctx context.Context, bucket string) error {
	if _, ok := d.buckets[bucket]; ok {
		return nil
	}
	if err := d.blobs.CreateBucket(ctx, bucket); err != nil {
		d.logger.Error("cannot create bucket", "bucket", bucket, "err", err)
		return err
	}
	d.buckets[bucket] = struct{}{}
	return nil
}

// Open opens an existing database. It fails, leaving the database closed,
// unless the root document exists and names this database.
func (d *Database) Open(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.open = false
	d.root = nil
	d.binding = nil

	if err := validateName(name); err != nil {
		d.logger.Error("cannot open database", "err", err)
		return err
	}
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}

	binding := store.Bind(d.attrs, d.blobs, name)
	root, err := loadRoot(ctx, binding, name, d.logger)
	if err != nil {
		d.logger.Error("cannot open database", "database", name, "err", err)
		return err
	}

	d.name = name
	d.binding = binding
	d.root = root
	d.open = true
	d.logger.Debug("Database.Open() - database is open", "database", name)
	return nil
}

func loadRoot(ctx context.Context, binding *store.Binding, name string, logger *slog.Logger) (*document.Document, error) {
	root := document.New(ROOT_DOCUMENT_NAME, binding, logger)
	if err := root.Load(ctx, false); err != nil {
		if errors.Is(err, fault.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: domain %s", fault.ErrRootMissing, name)
		}
		return nil, err
	}
	v, ok, err := root.Get(ctx, ROOT_DATABASE_ITEM)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: domain %s has no %s item", fault.ErrRootMissing, name, ROOT_DATABASE_ITEM)
	}
	if got, _ := types.As[string](v); got != name {
		return nil, fmt.Errorf("%w: domain %s names %q", fault.ErrRootMismatch, name, v.String())
	}
	return root, nil
}

// session returns the binding of the open database.
func (d *Database) session() (*store.Binding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, fault.ErrDatabaseNotOpen
	}
	return d.binding, nil
}

func checkDocumentName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty document name", fault.ErrInvalidName)
	}
	if name == ROOT_DOCUMENT_NAME {
		return fmt.Errorf("%w: %s", fault.ErrReservedName, name)
	}
	return nil
}

// CreateDocument returns a new, unsaved document.
func (d *Database) CreateDocument(name string) (*document.Document, error) {
	if err := checkDocumentName(name); err != nil {
		return nil, err
	}
	binding, err := d.session()
	if err != nil {
		return nil, err
	}
	return document.New(name, binding, d.logger), nil
}

// GetDocument loads a document. A missing document is reported as
// fault.ErrDocumentNotFound.
func (d *Database) GetDocument(ctx context.Context, name string, preload bool) (*document.Document, error) {
	if err := checkDocumentName(name); err != nil {
		return nil, err
	}
	binding, err := d.session()
	if err != nil {
		return nil, err
	}
	doc := document.New(name, binding, d.logger)
	if err := doc.Load(ctx, preload); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Database) selectDocuments(ctx context.Context, binding *store.Binding, q store.Query) ([]*document.Document, error) {
	// Ask for one more so the root document can be dropped without
	// shortening the result.
	capped := q
	if capped.Limit > 0 {
		capped.Limit++
	}
	records, err := binding.Select(ctx, capped)
	if err != nil {
		d.logger.Error("cannot select documents", "domain", binding.Domain, "query", q.String(), "err", err)
		return nil, err
	}

	docs := make([]*document.Document, 0, len(records))
	for _, r := range records {
		if r.Name == ROOT_DOCUMENT_NAME {
			continue
		}
		doc := document.New(r.Name, binding, d.logger)
		if err := doc.LoadAttributes(r.Attributes); err != nil {
			var de *fault.DecodeError
			if !errors.As(err, &de) {
				return nil, err
			}
			d.logger.Warn("skipping undecodable document", "domain", binding.Domain, "document", r.Name, "err", err)
			continue
		}
		docs = append(docs, doc)
		if q.Limit > 0 && len(docs) >= q.Limit {
			break
		}
	}
	return docs, nil
}

// Search returns up to limit documents matching the backend filter
// expression. Payloads are loaded lazily.
func (d *Database) Search(ctx context.Context, filter string, limit int) ([]*document.Document, error) {
	binding, err := d.session()
	if err != nil {
		return nil, err
	}
	return d.selectDocuments(ctx, binding, store.Query{Filter: filter, Limit: limit})
}

// LoadData returns every document in the database.
func (d *Database) LoadData(ctx context.Context) ([]*document.Document, error) {
	binding, err := d.session()
	if err != nil {
		return nil, err
	}
	return d.selectDocuments(ctx, binding, store.Query{})
}

// GetAllDocuments returns the sorted names of all documents. Item values are
// not decoded.
func (d *Database) GetAllDocuments(ctx context.Context) ([]string, error) {
	binding, err := d.session()
	if err != nil {
		return nil, err
	}
	records, err := binding.Select(ctx, store.Query{})
	if err != nil {
		d.logger.Error("cannot select documents", "domain", binding.Domain, "err", err)
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		if r.Name != ROOT_DOCUMENT_NAME {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteDocument loads a document and removes it.
func (d *Database) DeleteDocument(ctx context.Context, name string) error {
	doc, err := d.GetDocument(ctx, name, false)
	if err != nil {
		return err
	}
	return doc.Remove(ctx)
}

// Objects lists every key in the database's bucket.
func (d *Database) Objects(ctx context.Context) ([]string, error) {
	binding, err := d.session()
	if err != nil {
		return nil, err
	}
	keys, err := binding.ListObjects(ctx)
	if err != nil {
		d.logger.Error("cannot list objects", "bucket", binding.Bucket, "err", err)
		return nil, err
	}
	return keys, nil
}

// Remove drops the open database: every object in the bucket, the bucket,
// then the domain. It cannot be undone.
func (d *Database) Remove(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return fault.ErrDatabaseNotOpen
	}
	name := d.name
	bucket := d.binding.Bucket

	if err := d.blobs.DeleteBucket(ctx, bucket); err != nil && !errors.Is(err, fault.ErrBucketNotFound) {
		d.logger.Error("cannot delete bucket", "bucket", bucket, "err", err)
		d.connected = false
		return fmt.Errorf("removing database %s: %w", name, err)
	}
	delete(d.buckets, bucket)
	if err := d.attrs.DeleteDomain(ctx, name); err != nil {
		d.logger.Error("cannot delete domain", "domain", name, "err", err)
		d.connected = false
		return fmt.Errorf("removing database %s: %w", name, err)
	}
	delete(d.domains, name)

	// The next create check lists the stores again.
	d.connected = false
	d.open = false
	d.root = nil
	d.binding = nil
	d.logger.Debug("Database.Remove() - database removed", "database", name)
	return nil
}
