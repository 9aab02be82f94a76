package database_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/tierdoc/database"
	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
	"github.com/guyvdb/tierdoc/types"
)

func newBoltStore(t *testing.T) *store.BoltStore {
	t.Helper()
	bs, err := store.NewBoltStore(filepath.Join(t.TempDir(), "db.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

func fastPropagation() database.Option {
	return database.WithPropagation(100*time.Millisecond, 5*time.Millisecond)
}

func initDatabase(t *testing.T, bs *store.BoltStore, name string) *database.Database {
	t.Helper()
	db := database.New(bs, bs, fastPropagation())
	require.NoError(t, db.Init(context.Background(), name))
	return db
}

func TestInitCreatesLayout(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	assert.True(t, db.IsConnected())
	assert.True(t, db.IsOpen())
	assert.Equal(t, "foo", db.Name())

	domains, err := bs.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, domains)

	buckets, err := bs.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.tierdoc.db"}, buckets)

	keys, err := db.Objects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/", "system/"}, keys)

	attrs, err := bs.GetAttributes(ctx, "foo", database.ROOT_DOCUMENT_NAME)
	require.NoError(t, err)
	assert.Equal(t, []store.Attribute{{Name: database.ROOT_DATABASE_ITEM, Value: "foo"}}, attrs)

	// A second Init adopts the existing database.
	again := database.New(bs, bs, fastPropagation())
	require.NoError(t, again.Init(ctx, "foo"))
	assert.True(t, again.IsOpen())
}

func TestEndToEndInlineInteger(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	initDatabase(t, bs, "foo")

	db := database.New(bs, bs)
	require.NoError(t, db.Open(ctx, "foo"))

	d1, err := db.CreateDocument("d1")
	require.NoError(t, err)
	_, err = d1.Set("n", types.IntegerValue(12345))
	require.NoError(t, err)
	require.NoError(t, d1.Save(ctx))

	reloaded, err := db.GetDocument(ctx, "d1", false)
	require.NoError(t, err)
	v, ok, err := reloaded.Get(ctx, "n")
	require.NoError(t, err)
	require.True(t, ok)
	n, ok := types.As[int64](v)
	require.True(t, ok)
	assert.Equal(t, int64(12345), n)
}

func TestEndToEndExternalizedText(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	text := strings.Repeat("0123456789", 200)
	d1, err := db.CreateDocument("d1")
	require.NoError(t, err)
	_, err = d1.Set("body", types.TextValue(text))
	require.NoError(t, err)
	require.NoError(t, d1.Save(ctx))

	attrs, err := bs.GetAttributes(ctx, "foo", "d1")
	require.NoError(t, err)
	assert.Equal(t, []store.Attribute{{Name: "body", Value: "!@TXT:data/body/d1"}}, attrs)

	obj, err := bs.GetObject(ctx, "foo.tierdoc.db", "data/body/d1")
	require.NoError(t, err)
	assert.Equal(t, text, string(obj.Body))
	assert.Equal(t, types.MIME_TEXT, obj.ContentType)

	reloaded, err := db.GetDocument(ctx, "d1", true)
	require.NoError(t, err)
	v, _, err := reloaded.Get(ctx, "body")
	require.NoError(t, err)
	assert.Equal(t, text, v.String())
}

func TestOpenRootMismatch(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	initDatabase(t, bs, "A")

	require.NoError(t, bs.PutAttributes(ctx, "A", database.ROOT_DOCUMENT_NAME, []store.Attribute{
		{Name: database.ROOT_DATABASE_ITEM, Value: "B"},
	}))

	db := database.New(bs, bs)
	err := db.Open(ctx, "A")
	assert.ErrorIs(t, err, fault.ErrRootMismatch)
	assert.False(t, db.IsOpen())

	_, err = db.CreateDocument("x")
	assert.ErrorIs(t, err, fault.ErrDatabaseNotOpen)
}

func TestOpenMissingDatabase(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)

	db := database.New(bs, bs)
	require.Error(t, db.Open(ctx, "nothing"))
	assert.False(t, db.IsOpen())

	require.NoError(t, bs.CreateDomain(ctx, "empty"))
	err := db.Open(ctx, "empty")
	assert.ErrorIs(t, err, fault.ErrRootMissing)

	assert.ErrorIs(t, db.Open(ctx, ""), fault.ErrInvalidDatabaseName)
	assert.ErrorIs(t, db.Init(ctx, ""), fault.ErrInvalidDatabaseName)
}

func TestReservedRootName(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	_, err := db.CreateDocument(database.ROOT_DOCUMENT_NAME)
	assert.ErrorIs(t, err, fault.ErrReservedName)
	_, err = db.GetDocument(ctx, database.ROOT_DOCUMENT_NAME, false)
	assert.ErrorIs(t, err, fault.ErrReservedName)
	assert.ErrorIs(t, db.DeleteDocument(ctx, database.ROOT_DOCUMENT_NAME), fault.ErrReservedName)
}

func TestEnumerationExcludesRoot(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	for i, name := range []string{"b", "a", "c"} {
		doc, err := db.CreateDocument(name)
		require.NoError(t, err)
		_, err = doc.Set("rank", types.IntegerValue(int64(i)))
		require.NoError(t, err)
		_, err = doc.Set("kind", types.TextValue("letter"))
		require.NoError(t, err)
		require.NoError(t, doc.Save(ctx))
	}

	names, err := db.GetAllDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	docs, err := db.LoadData(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	// "@root" sorts first, so the cap must still yield two documents.
	found, err := db.Search(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].Name())
	assert.Equal(t, "b", found[1].Name())

	found, err = db.Search(ctx, `rank == "!@INT:2"`, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c", found[0].Name())
	v, _, err := found[0].Get(ctx, "kind")
	require.NoError(t, err)
	assert.Equal(t, "letter", v.String())

	_, err = db.GetDocument(ctx, "zzz", false)
	assert.ErrorIs(t, err, fault.ErrDocumentNotFound)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	doc, err := db.CreateDocument("d")
	require.NoError(t, err)
	_, err = doc.SetJSON("payload", `{"a":1}`)
	require.NoError(t, err)
	require.NoError(t, doc.Save(ctx))

	keys, err := db.Objects(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "data/payload/d")

	require.NoError(t, db.DeleteDocument(ctx, "d"))

	keys, err = db.Objects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/", "system/"}, keys)

	_, err = db.GetDocument(ctx, "d", false)
	assert.ErrorIs(t, err, fault.ErrDocumentNotFound)
	assert.ErrorIs(t, db.DeleteDocument(ctx, "d"), fault.ErrDocumentNotFound)
}

func TestRemoveDatabase(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")
	initDatabase(t, bs, "bar")

	doc, err := db.CreateDocument("d")
	require.NoError(t, err)
	_, err = doc.SetXML("x", "<x/>")
	require.NoError(t, err)
	require.NoError(t, doc.Save(ctx))

	require.NoError(t, db.Remove(ctx))
	assert.False(t, db.IsOpen())
	assert.False(t, db.IsConnected())

	domains, err := bs.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar"}, domains)
	buckets, err := bs.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar.tierdoc.db"}, buckets)

	assert.ErrorIs(t, db.Remove(ctx), fault.ErrDatabaseNotOpen)

	// The caches were dropped, so the name can be initialized again.
	require.NoError(t, db.Init(ctx, "foo"))
	names, err := db.GetAllDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

// flakyDomains fails the next DeleteDomain call.
type flakyDomains struct {
	store.AttributeStore
	failDelete bool
}

var errTransient = errors.New("transient")

func (f *flakyDomains) DeleteDomain(ctx context.Context, name string) error {
	if f.failDelete {
		f.failDelete = false
		return errTransient
	}
	return f.AttributeStore.DeleteDomain(ctx, name)
}

func TestRemoveFailureKeepsCachesHonest(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	flaky := &flakyDomains{AttributeStore: bs}
	db := database.New(flaky, bs, fastPropagation())
	require.NoError(t, db.Init(ctx, "foo"))

	flaky.failDelete = true
	err := db.Remove(ctx)
	assert.ErrorIs(t, err, errTransient)
	assert.False(t, db.IsConnected())

	buckets, err := bs.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)

	// The bucket is gone but the domain survived; Init must recreate the
	// bucket and its folders rather than trust what it saw before.
	require.NoError(t, db.Init(ctx, "foo"))
	keys, err := db.Objects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/", "system/"}, keys)

	require.NoError(t, db.Remove(ctx))
	domains, err := bs.ListDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestEnumerationSkipsUndecodableDocument(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	for _, name := range []string{"a", "b"} {
		doc, err := db.CreateDocument(name)
		require.NoError(t, err)
		_, err = doc.Set("n", types.IntegerValue(1))
		require.NoError(t, err)
		require.NoError(t, doc.Save(ctx))
	}
	require.NoError(t, bs.PutAttributes(ctx, "foo", "c", []store.Attribute{{Name: "x", Value: "!@ZZZ:1"}}))

	names, err := db.GetAllDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	docs, err := db.LoadData(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Name())
	assert.Equal(t, "b", docs[1].Name())

	found, err := db.Search(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = db.GetDocument(ctx, "c", false)
	var de *fault.DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, fault.ErrUnknownTag)
}

func TestInjectedLoggerReceivesDebug(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	bs := newBoltStore(t)
	db := database.New(bs, bs, fastPropagation(), database.WithLogger(logger))
	require.NoError(t, db.Init(ctx, "foo"))
	_, err := db.GetDocument(ctx, database.ROOT_DOCUMENT_NAME, false)
	assert.ErrorIs(t, err, fault.ErrReservedName)

	out := buf.String()
	assert.Contains(t, out, "Database.Connect()")
	assert.Contains(t, out, "Document.Save()")
	assert.Contains(t, out, "Document.Load()")
	assert.Contains(t, out, "Database.Open()")
}

func TestDisconnect(t *testing.T) {
	bs := newBoltStore(t)
	db := initDatabase(t, bs, "foo")

	require.NoError(t, db.Close())
	assert.False(t, db.IsOpen())
	assert.False(t, db.IsConnected())
	assert.Nil(t, db.Root())

	_, err := db.Search(context.Background(), "", 0)
	assert.ErrorIs(t, err, fault.ErrDatabaseNotOpen)
}

// laggingStore hides the root document, like an attribute store that has
// not yet propagated a write.
type laggingStore struct {
	store.AttributeStore
	visibleAfter int
	reads        int
}

func (l *laggingStore) GetAttributes(ctx context.Context, domain, item string) ([]store.Attribute, error) {
	if item == database.ROOT_DOCUMENT_NAME {
		l.reads++
		if l.visibleAfter < 0 || l.reads <= l.visibleAfter {
			return []store.Attribute{}, nil
		}
	}
	return l.AttributeStore.GetAttributes(ctx, domain, item)
}

func TestInitWaitsForPropagation(t *testing.T) {
	bs := newBoltStore(t)
	lag := &laggingStore{AttributeStore: bs, visibleAfter: 3}

	db := database.New(lag, bs, database.WithPropagation(5*time.Second, time.Millisecond))
	require.NoError(t, db.Init(context.Background(), "foo"))
	assert.True(t, db.IsOpen())
	assert.Equal(t, 4, lag.reads)
}

func TestInitPropagationTimeout(t *testing.T) {
	bs := newBoltStore(t)
	lag := &laggingStore{AttributeStore: bs, visibleAfter: -1}

	db := database.New(lag, bs, database.WithPropagation(50*time.Millisecond, 5*time.Millisecond))
	err := db.Init(context.Background(), "foo")
	assert.ErrorIs(t, err, fault.ErrPropagationTimeout)
	assert.ErrorIs(t, err, fault.ErrRootMissing)
	assert.False(t, db.IsOpen())
	assert.Greater(t, lag.reads, 1)
}

func TestInitHonoursCancellation(t *testing.T) {
	bs := newBoltStore(t)
	lag := &laggingStore{AttributeStore: bs, visibleAfter: -1}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	db := database.New(lag, bs, database.WithPropagation(time.Minute, 5*time.Millisecond))
	err := db.Init(ctx, "foo")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fault.ErrPropagationTimeout)
}

func TestSecondSaveWritesNothing(t *testing.T) {
	ctx := context.Background()
	bs := newBoltStore(t)
	initDatabase(t, bs, "foo")

	m := store.NewMetrics("test")
	require.NoError(t, m.Register(prometheus.NewRegistry()))
	attrs := store.InstrumentAttributeStore(bs, m)
	blobs := store.InstrumentBlobStore(bs, m)

	db := database.New(attrs, blobs)
	require.NoError(t, db.Open(ctx, "foo"))
	doc, err := db.CreateDocument("d")
	require.NoError(t, err)
	_, err = doc.SetJSON("j", `[1,2,3]`)
	require.NoError(t, err)
	_, err = doc.Set("n", types.IntegerValue(1))
	require.NoError(t, err)
	require.NoError(t, doc.Save(ctx))

	writes := func() float64 {
		return testutil.ToFloat64(m.Calls.WithLabelValues("attribute", "PutAttributes", "ok")) +
			testutil.ToFloat64(m.Calls.WithLabelValues("blob", "PutObject", "ok")) +
			testutil.ToFloat64(m.Calls.WithLabelValues("blob", "DeleteObject", "ok"))
	}
	assert.Equal(t, 2.0, writes())

	require.NoError(t, doc.Save(ctx))
	assert.Equal(t, 2.0, writes())
}
