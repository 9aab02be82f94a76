package document

import (
	"context"
	"fmt"

	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
	"github.com/guyvdb/tierdoc/types"
)

// cell holds an item's value in one of two states: unloaded, where only the
// blob path and mime type are known, or loaded.
type cell interface {
	isCell()
}

type unloaded struct {
	path string
	mime string
}

type loaded struct {
	value types.Value
}

func (unloaded) isCell() {}
func (loaded) isCell()   {}

// Item is one named value of a document.
type Item struct {
	doc   *Document
	name  string
	state cell
	dirty bool

	// stored is true while the blob store holds a payload for this item,
	// that is when the item was externalized at its last load or save.
	stored bool
}

func newItem(doc *Document, name string) *Item {
	return &Item{doc: doc, name: name, state: loaded{value: types.NullValue()}}
}

func (it *Item) Name() string {
	return it.name
}

// Path is the blob key of the item's externalized payload.
func (it *Item) Path() string {
	return store.BlobKey(it.doc.name, it.name)
}

// IsLoaded reports whether the value is in memory.
func (it *Item) IsLoaded() bool {
	_, ok := it.state.(loaded)
	return ok
}

// IsDirty reports whether the item has changes not yet saved.
func (it *Item) IsDirty() bool {
	return it.dirty
}

func (it *Item) placement() types.Placement {
	switch s := it.state.(type) {
	case unloaded:
		return types.Placement{Externalized: true, Mime: s.mime}
	case loaded:
		return types.Classify(s.value)
	}
	return types.Placement{}
}

// IsExternalized reports whether the item's value lives in the blob store.
func (it *Item) IsExternalized() bool {
	return it.placement().Externalized
}

// Mime is the mime type of the externalized payload, or "" for inline items.
func (it *Item) Mime() string {
	return it.placement().Mime
}

// Demoted reports whether a payload is still stored for an item whose
// current value is inline. Saving such an item deletes the payload.
func (it *Item) Demoted() bool {
	return it.stored && !it.IsExternalized()
}

// Value returns the item's value, fetching and parsing the externalized
// payload on first access.
func (it *Item) Value(ctx context.Context) (types.Value, error) {
	switch s := it.state.(type) {
	case loaded:
		return s.value, nil
	case unloaded:
		v, err := it.fetch(ctx, s)
		if err != nil {
			return types.Value{}, err
		}
		it.state = loaded{value: v}
		return v, nil
	}
	return types.Value{}, fmt.Errorf("%w: %s: no state", fault.ErrItemLoadFailed, it.name)
}

func (it *Item) fetch(ctx context.Context, s unloaded) (types.Value, error) {
	it.doc.logger.Debug("Item.fetch() - load payload", "document", it.doc.name, "item", it.name, "path", s.path, "mime", s.mime)

	obj, err := it.doc.backend.GetObject(ctx, s.path)
	if err != nil {
		it.doc.logger.Error("cannot load item payload", "document", it.doc.name, "item", it.name, "path", s.path, "err", err)
		return types.Value{}, fmt.Errorf("%w: %s/%s: %w", fault.ErrItemLoadFailed, it.doc.name, it.name, err)
	}
	v, err := types.GetRegistry().Parse(s.mime, obj.Body)
	if err != nil {
		it.doc.logger.Error("cannot parse item payload", "document", it.doc.name, "item", it.name, "mime", s.mime, "err", err)
		return types.Value{}, fmt.Errorf("%w: %s/%s: %w", fault.ErrItemLoadFailed, it.doc.name, it.name, err)
	}
	return v, nil
}

// Set replaces the value and marks the item and its document dirty. Nothing
// is written until the document is saved.
func (it *Item) Set(v types.Value) {
	it.state = loaded{value: v}
	it.dirty = true
	it.doc.dirty = true
}

// Kind is the kind of the loaded value, or the kind implied by the mime type
// of an unloaded one.
func (it *Item) Kind() types.Kind {
	switch s := it.state.(type) {
	case loaded:
		return s.value.Kind()
	case unloaded:
		if codec, err := types.GetRegistry().Lookup(s.mime); err == nil {
			return codec.Kind
		}
	}
	return types.KindNull
}

// wire is the attribute value written for the item on save.
func (it *Item) wire() (string, error) {
	s, ok := it.state.(loaded)
	if !ok {
		// Only loaded items can be dirty.
		return "", fmt.Errorf("%w: %s: value not loaded", fault.ErrSaveFailed, it.name)
	}
	return types.Encode(s.value, it.Path()), nil
}

// payload is the blob body written for an externalized item on save.
func (it *Item) payload() ([]byte, string, error) {
	s, ok := it.state.(loaded)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s: value not loaded", fault.ErrSaveFailed, it.name)
	}
	p := types.Classify(s.value)
	body, err := types.GetRegistry().Format(p.Mime, s.value)
	if err != nil {
		return nil, "", err
	}
	return body, p.Mime, nil
}

func (it *Item) markSaved() {
	it.dirty = false
	it.stored = it.IsExternalized()
}

func (it *Item) String() string {
	return fmt.Sprintf("%s (%v)", it.name, it.Kind())
}
