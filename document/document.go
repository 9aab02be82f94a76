package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
	"github.com/guyvdb/tierdoc/types"
)

// Backend is the part of the two stores a document reads and writes. It is
// already bound to one domain and one bucket; store.Binding implements it.
type Backend interface {
	GetAttributes(ctx context.Context, document string) ([]store.Attribute, error)
	PutAttributes(ctx context.Context, document string, attrs []store.Attribute) error
	DeleteAttributes(ctx context.Context, document string) error
	GetObject(ctx context.Context, key string) (store.Object, error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

var _ Backend = (*store.Binding)(nil)

// Document is a named set of items. A Document is not safe for concurrent
// use; it belongs to a single logical operation.
type Document struct {
	name    string
	backend Backend
	logger  *slog.Logger
	items   map[string]*Item
	dirty   bool
	loaded  bool
}

// New creates an empty, unsaved document. A nil logger means slog.Default().
func New(name string, backend Backend, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		name:    name,
		backend: backend,
		logger:  logger,
		items:   make(map[string]*Item),
	}
}

func (d *Document) Name() string {
	return d.name
}

// IsValid reports whether the document is bound to a backend and named.
func (d *Document) IsValid() bool {
	return d.backend != nil && d.name != ""
}

// IsLoaded reports whether the item index reflects a successful load.
func (d *Document) IsLoaded() bool {
	return d.loaded
}

// IsDirty reports whether any item has unsaved changes.
func (d *Document) IsDirty() bool {
	return d.dirty
}

func (d *Document) Len() int {
	return len(d.items)
}

// Has reports whether the document holds an item of the given name.
func (d *Document) Has(name string) bool {
	_, ok := d.items[name]
	return ok
}

// Item returns the named item, or nil.
func (d *Document) Item(name string) *Item {
	return d.items[name]
}

// Names returns the item names in sorted order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.items))
	for n := range d.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Items returns the items sorted by name.
func (d *Document) Items() []*Item {
	items := make([]*Item, 0, len(d.items))
	for _, n := range d.Names() {
		items = append(items, d.items[n])
	}
	return items
}

// Get returns the value of the named item, loading an externalized payload
// if needed. The second result is false when there is no such item.
func (d *Document) Get(ctx context.Context, name string) (types.Value, bool, error) {
	it, ok := d.items[name]
	if !ok {
		return types.Value{}, false, nil
	}
	v, err := it.Value(ctx)
	if err != nil {
		return types.Value{}, true, err
	}
	return v, true, nil
}

// Set creates the named item or replaces its value. An existing item keeps
// its identity.
func (d *Document) Set(name string, v types.Value) (*Item, error) {
	if !store.ValidItemName(name) {
		return nil, fmt.Errorf("%w: item %q", fault.ErrInvalidName, name)
	}
	it, ok := d.items[name]
	if !ok {
		it = newItem(d, name)
		d.items[name] = it
	}
	it.Set(v)
	return it, nil
}

// SetAny converts x with types.ValueOf and sets it.
func (d *Document) SetAny(name string, x any) (*Item, error) {
	v, err := types.ValueOf(x)
	if err != nil {
		return nil, err
	}
	return d.Set(name, v)
}

// LoadAttributes replaces the item index with items decoded from attrs.
// Externalized items are left unloaded. On a decode error the current index
// is kept and the error returned.
func (d *Document) LoadAttributes(attrs []store.Attribute) error {
	items := make(map[string]*Item, len(attrs))
	for _, a := range attrs {
		if _, dup := items[a.Name]; dup {
			d.logger.Warn("duplicate attribute ignored", "document", d.name, "item", a.Name)
			continue
		}
		decoded, err := types.Decode(a.Value)
		if err != nil {
			d.logger.Error("cannot decode attribute", "document", d.name, "item", a.Name, "err", err)
			return fmt.Errorf("document %s item %s: %w", d.name, a.Name, err)
		}
		it := &Item{doc: d, name: a.Name}
		if decoded.Externalized() {
			it.state = unloaded{path: decoded.Path, mime: decoded.Mime}
			it.stored = true
		} else {
			it.state = loaded{value: decoded.Value}
		}
		items[a.Name] = it
	}
	d.items = items
	d.dirty = false
	d.loaded = true
	return nil
}

// Load fetches the document's attributes and replaces the whole item index
// with them; nothing is merged. With preload every externalized payload is
// fetched too, otherwise payloads load on first access. A document with no
// attributes yields fault.ErrDocumentNotFound and an empty index.
func (d *Document) Load(ctx context.Context, preload bool) error {
	d.logger.Debug("Document.Load() - load document", "document", d.name, "preload", preload)

	attrs, err := d.backend.GetAttributes(ctx, d.name)
	if err != nil {
		d.logger.Error("cannot load document", "document", d.name, "err", err)
		return fmt.Errorf("loading document %s: %w", d.name, err)
	}
	if err := d.LoadAttributes(attrs); err != nil {
		return err
	}
	if len(attrs) == 0 {
		return fmt.Errorf("%w: %s", fault.ErrDocumentNotFound, d.name)
	}
	if preload {
		return d.Preload(ctx)
	}
	return nil
}

// ReloadData discards all in-memory state, including unsaved changes, and
// loads the document again.
func (d *Document) ReloadData(ctx context.Context, preload bool) error {
	d.items = make(map[string]*Item)
	d.dirty = false
	d.loaded = false
	return d.Load(ctx, preload)
}

// Preload fetches every externalized payload that is not loaded yet.
func (d *Document) Preload(ctx context.Context) error {
	for _, it := range d.Items() {
		if it.IsLoaded() {
			continue
		}
		if _, err := it.Value(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the dirty items: one batched attribute upsert, then one blob
// write per externalized item and one blob delete per demoted item. Dirty
// flags are cleared only when every step succeeded, so a failed save can be
// retried and repeats the same writes.
func (d *Document) Save(ctx context.Context) error {
	if !d.dirty {
		return nil
	}

	dirty := make([]*Item, 0)
	for _, it := range d.Items() {
		if it.dirty {
			dirty = append(dirty, it)
		}
	}
	if len(dirty) == 0 {
		d.dirty = false
		return nil
	}

	d.logger.Debug("Document.Save() - save document", "document", d.name, "items", len(dirty))

	attrs := make([]store.Attribute, 0, len(dirty))
	for _, it := range dirty {
		wire, err := it.wire()
		if err != nil {
			return err
		}
		attrs = append(attrs, store.Attribute{Name: it.name, Value: wire})
	}
	if err := d.backend.PutAttributes(ctx, d.name, attrs); err != nil {
		d.logger.Error("cannot save document attributes", "document", d.name, "err", err)
		return fmt.Errorf("%w: %s: %w", fault.ErrSaveFailed, d.name, err)
	}

	for _, it := range dirty {
		switch {
		case it.IsExternalized():
			body, mime, err := it.payload()
			if err != nil {
				return fmt.Errorf("%w: %s/%s: %w", fault.ErrSaveFailed, d.name, it.name, err)
			}
			if err := d.backend.PutObject(ctx, it.Path(), body, mime); err != nil {
				d.logger.Error("cannot save item payload", "document", d.name, "item", it.name, "path", it.Path(), "err", err)
				return fmt.Errorf("%w: %s/%s: %w", fault.ErrSaveFailed, d.name, it.name, err)
			}
		case it.Demoted():
			if err := d.deleteObject(ctx, it.Path()); err != nil {
				d.logger.Error("cannot delete demoted item payload", "document", d.name, "item", it.name, "path", it.Path(), "err", err)
				return fmt.Errorf("%w: %s/%s: %w", fault.ErrSaveFailed, d.name, it.name, err)
			}
		}
	}

	for _, it := range dirty {
		it.markSaved()
	}
	d.dirty = false
	return nil
}

func (d *Document) deleteObject(ctx context.Context, key string) error {
	err := d.backend.DeleteObject(ctx, key)
	if errors.Is(err, fault.ErrObjectNotFound) {
		return nil
	}
	return err
}

// Remove deletes the document: first every stored payload, then the
// attribute record, then the in-memory items. Interrupted half way, this
// leaves orphaned payloads rather than attributes pointing at missing ones.
func (d *Document) Remove(ctx context.Context) error {
	d.logger.Debug("Document.Remove() - remove document", "document", d.name)

	for _, it := range d.Items() {
		if !it.stored {
			continue
		}
		if err := d.deleteObject(ctx, it.Path()); err != nil {
			d.logger.Error("cannot delete item payload", "document", d.name, "item", it.name, "err", err)
			return fmt.Errorf("%w: %s/%s: %w", fault.ErrRemoveFailed, d.name, it.name, err)
		}
		it.stored = false
	}
	if err := d.backend.DeleteAttributes(ctx, d.name); err != nil {
		d.logger.Error("cannot delete document attributes", "document", d.name, "err", err)
		return fmt.Errorf("%w: %s: %w", fault.ErrRemoveFailed, d.name, err)
	}
	d.items = make(map[string]*Item)
	d.dirty = false
	return nil
}

func (d *Document) String() string {
	return fmt.Sprintf("%s (%d)", d.name, len(d.items))
}
