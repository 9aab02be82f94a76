package store_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/simpledb"
	"github.com/aws/aws-sdk-go/service/simpledb/simpledbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/tierdoc/fault"
	"github.com/guyvdb/tierdoc/store"
)

// fakeSimpleDB keeps domains in memory and pages every listing two entries
// at a time.
type fakeSimpleDB struct {
	simpledbiface.SimpleDBAPI

	domains     map[string]map[string][]*simpledb.Attribute
	putCalls    int
	selects     []string
	consistency []bool
}

func newFakeSimpleDB() *fakeSimpleDB {
	return &fakeSimpleDB{domains: make(map[string]map[string][]*simpledb.Attribute)}
}

func noSuchDomain() error {
	return awserr.New(simpledb.ErrCodeNoSuchDomain, "no such domain", nil)
}

func page(n int, token *string) (start, end int, next *string) {
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	end = min(start+2, n)
	if end < n {
		next = aws.String(strconv.Itoa(end))
	}
	return start, end, next
}

func (f *fakeSimpleDB) ListDomainsWithContext(_ aws.Context, in *simpledb.ListDomainsInput, _ ...request.Option) (*simpledb.ListDomainsOutput, error) {
	names := make([]string, 0, len(f.domains))
	for n := range f.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	start, end, next := page(len(names), in.NextToken)
	return &simpledb.ListDomainsOutput{DomainNames: aws.StringSlice(names[start:end]), NextToken: next}, nil
}

func (f *fakeSimpleDB) CreateDomainWithContext(_ aws.Context, in *simpledb.CreateDomainInput, _ ...request.Option) (*simpledb.CreateDomainOutput, error) {
	if _, ok := f.domains[*in.DomainName]; !ok {
		f.domains[*in.DomainName] = make(map[string][]*simpledb.Attribute)
	}
	return &simpledb.CreateDomainOutput{}, nil
}

func (f *fakeSimpleDB) DeleteDomainWithContext(_ aws.Context, in *simpledb.DeleteDomainInput, _ ...request.Option) (*simpledb.DeleteDomainOutput, error) {
	delete(f.domains, *in.DomainName)
	return &simpledb.DeleteDomainOutput{}, nil
}

func (f *fakeSimpleDB) GetAttributesWithContext(_ aws.Context, in *simpledb.GetAttributesInput, _ ...request.Option) (*simpledb.GetAttributesOutput, error) {
	f.consistency = append(f.consistency, aws.BoolValue(in.ConsistentRead))
	d, ok := f.domains[*in.DomainName]
	if !ok {
		return nil, noSuchDomain()
	}
	return &simpledb.GetAttributesOutput{Attributes: d[*in.ItemName]}, nil
}

func (f *fakeSimpleDB) PutAttributesWithContext(_ aws.Context, in *simpledb.PutAttributesInput, _ ...request.Option) (*simpledb.PutAttributesOutput, error) {
	f.putCalls++
	d, ok := f.domains[*in.DomainName]
	if !ok {
		return nil, noSuchDomain()
	}
	if len(in.Attributes) > store.SIMPLEDB_MAX_ATTRIBUTES {
		return nil, awserr.New("NumberSubmittedAttributesExceeded", "too many", nil)
	}
	current := d[*in.ItemName]
	for _, a := range in.Attributes {
		if !aws.BoolValue(a.Replace) {
			return nil, fmt.Errorf("attribute %s not replaced", *a.Name)
		}
		replaced := false
		for _, c := range current {
			if *c.Name == *a.Name {
				c.Value = a.Value
				replaced = true
			}
		}
		if !replaced {
			current = append(current, &simpledb.Attribute{Name: a.Name, Value: a.Value})
		}
	}
	d[*in.ItemName] = current
	return &simpledb.PutAttributesOutput{}, nil
}

func (f *fakeSimpleDB) DeleteAttributesWithContext(_ aws.Context, in *simpledb.DeleteAttributesInput, _ ...request.Option) (*simpledb.DeleteAttributesOutput, error) {
	d, ok := f.domains[*in.DomainName]
	if !ok {
		return nil, noSuchDomain()
	}
	delete(d, *in.ItemName)
	return &simpledb.DeleteAttributesOutput{}, nil
}

// SelectWithContext ignores the expression beyond recording it and returns
// every item of the first domain in name order.
func (f *fakeSimpleDB) SelectWithContext(_ aws.Context, in *simpledb.SelectInput, _ ...request.Option) (*simpledb.SelectOutput, error) {
	f.selects = append(f.selects, aws.StringValue(in.SelectExpression))
	f.consistency = append(f.consistency, aws.BoolValue(in.ConsistentRead))
	var d map[string][]*simpledb.Attribute
	for _, dom := range f.domains {
		d = dom
	}
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Strings(names)
	start, end, next := page(len(names), in.NextToken)
	items := make([]*simpledb.Item, 0, end-start)
	for _, n := range names[start:end] {
		items = append(items, &simpledb.Item{Name: aws.String(n), Attributes: d[n]})
	}
	return &simpledb.SelectOutput{Items: items, NextToken: next}, nil
}

func TestSimpleDBDomains(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSimpleDB()
	s := store.NewSimpleDBStore(fake)

	for _, n := range []string{"c", "a", "b", "d", "e"} {
		require.NoError(t, s.CreateDomain(ctx, n))
	}
	domains, err := s.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, domains)

	require.NoError(t, s.DeleteDomain(ctx, "e"))
	_, err = s.GetAttributes(ctx, "e", "x")
	assert.ErrorIs(t, err, fault.ErrDomainNotFound)
}

func TestSimpleDBAttributes(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSimpleDB()
	s := store.NewSimpleDBStore(fake)
	require.NoError(t, s.CreateDomain(ctx, "d"))

	attrs := make([]store.Attribute, 0, 300)
	for i := 0; i < 300; i++ {
		attrs = append(attrs, store.Attribute{Name: fmt.Sprintf("a%03d", i), Value: strconv.Itoa(i)})
	}
	require.NoError(t, s.PutAttributes(ctx, "d", "doc", attrs))
	assert.Equal(t, 2, fake.putCalls)

	got, err := s.GetAttributes(ctx, "d", "doc")
	require.NoError(t, err)
	assert.Equal(t, attrs, got)

	require.NoError(t, s.DeleteAttributes(ctx, "d", "doc"))
	got, err = s.GetAttributes(ctx, "d", "doc")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, consistent := range fake.consistency {
		assert.True(t, consistent)
	}
}

func TestSimpleDBSelect(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSimpleDB()
	s := store.NewSimpleDBStore(fake)
	require.NoError(t, s.CreateDomain(ctx, "d"))
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.PutAttributes(ctx, "d", n, []store.Attribute{{Name: "k", Value: n}}))
	}

	records, err := s.Select(ctx, "d", store.Query{})
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "e", records[4].Name)
	assert.Equal(t, []store.Attribute{{Name: "k", Value: "e"}}, records[4].Attributes)
	assert.Len(t, fake.selects, 3)

	fake.selects = nil
	records, err = s.Select(ctx, "d", store.Query{Filter: "k > 'a'", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, []string{"select * from `d` where k > 'a' limit 3", "select * from `d` where k > 'a' limit 3"}, fake.selects)
}
