package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricStoreCalls       = "store_calls_total"
	MetricStoreCallSeconds = "store_call_seconds"

	attributeStoreLabel = "attribute"
	blobStoreLabel      = "blob"
)

// Metrics counts and times calls made to the backing stores.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates unregistered collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricStoreCalls,
				Help:      "Calls made to the backing stores, by store, operation and result.",
			},
			[]string{"store", "op", "result"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricStoreCallSeconds,
				Help:      "Latency of calls made to the backing stores.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"store", "op"},
		),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.Calls); err != nil {
		return err
	}
	return reg.Register(m.Duration)
}

func (m *Metrics) observe(store, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Calls.WithLabelValues(store, op, result).Inc()
	m.Duration.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

// InstrumentAttributeStore wraps s so that every call is recorded in m.
func InstrumentAttributeStore(s AttributeStore, m *Metrics) AttributeStore {
	return &instrumentedAttributeStore{next: s, m: m}
}

// InstrumentBlobStore wraps s so that every call is recorded in m.
func InstrumentBlobStore(s BlobStore, m *Metrics) BlobStore {
	return &instrumentedBlobStore{next: s, m: m}
}

type instrumentedAttributeStore struct {
	next AttributeStore
	m    *Metrics
}

func (s *instrumentedAttributeStore) ListDomains(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "ListDomains", start, err) }(time.Now())
	return s.next.ListDomains(ctx)
}

func (s *instrumentedAttributeStore) CreateDomain(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "CreateDomain", start, err) }(time.Now())
	return s.next.CreateDomain(ctx, name)
}

func (s *instrumentedAttributeStore) DeleteDomain(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "DeleteDomain", start, err) }(time.Now())
	return s.next.DeleteDomain(ctx, name)
}

func (s *instrumentedAttributeStore) GetAttributes(ctx context.Context, domain, item string) (attrs []Attribute, err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "GetAttributes", start, err) }(time.Now())
	return s.next.GetAttributes(ctx, domain, item)
}

func (s *instrumentedAttributeStore) PutAttributes(ctx context.Context, domain, item string, attrs []Attribute) (err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "PutAttributes", start, err) }(time.Now())
	return s.next.PutAttributes(ctx, domain, item, attrs)
}

func (s *instrumentedAttributeStore) DeleteAttributes(ctx context.Context, domain, item string) (err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "DeleteAttributes", start, err) }(time.Now())
	return s.next.DeleteAttributes(ctx, domain, item)
}

func (s *instrumentedAttributeStore) Select(ctx context.Context, domain string, q Query) (records []Record, err error) {
	defer func(start time.Time) { s.m.observe(attributeStoreLabel, "Select", start, err) }(time.Now())
	return s.next.Select(ctx, domain, q)
}

type instrumentedBlobStore struct {
	next BlobStore
	m    *Metrics
}

func (s *instrumentedBlobStore) ListBuckets(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "ListBuckets", start, err) }(time.Now())
	return s.next.ListBuckets(ctx)
}

func (s *instrumentedBlobStore) CreateBucket(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "CreateBucket", start, err) }(time.Now())
	return s.next.CreateBucket(ctx, name)
}

func (s *instrumentedBlobStore) DeleteBucket(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "DeleteBucket", start, err) }(time.Now())
	return s.next.DeleteBucket(ctx, name)
}

func (s *instrumentedBlobStore) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) (err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "PutObject", start, err) }(time.Now())
	return s.next.PutObject(ctx, bucket, key, body, contentType)
}

func (s *instrumentedBlobStore) GetObject(ctx context.Context, bucket, key string) (obj Object, err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "GetObject", start, err) }(time.Now())
	return s.next.GetObject(ctx, bucket, key)
}

func (s *instrumentedBlobStore) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "DeleteObject", start, err) }(time.Now())
	return s.next.DeleteObject(ctx, bucket, key)
}

func (s *instrumentedBlobStore) ListObjects(ctx context.Context, bucket string) (keys []string, err error) {
	defer func(start time.Time) { s.m.observe(blobStoreLabel, "ListObjects", start, err) }(time.Now())
	return s.next.ListObjects(ctx, bucket)
}
