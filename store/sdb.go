package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/simpledb"
	"github.com/aws/aws-sdk-go/service/simpledb/simpledbiface"
	"github.com/guyvdb/tierdoc/fault"
)

var _ AttributeStore = (*SimpleDBStore)(nil)

// SIMPLEDB_MAX_ATTRIBUTES is the number of attributes SimpleDB accepts in a
// single PutAttributes call.
const SIMPLEDB_MAX_ATTRIBUTES int = 256

// SimpleDBStore is an AttributeStore backed by Amazon SimpleDB. Reads are
// consistent reads.
type SimpleDBStore struct {
	client simpledbiface.SimpleDBAPI
}

func NewSimpleDBStore(client simpledbiface.SimpleDBAPI) *SimpleDBStore {
	return &SimpleDBStore{client: client}
}

func sdbError(err error, domain string) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case simpledb.ErrCodeNoSuchDomain:
			return fmt.Errorf("%w: %s", fault.ErrDomainNotFound, domain)
		}
	}
	return err
}

func (s *SimpleDBStore) ListDomains(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	input := &simpledb.ListDomainsInput{}
	for {
		out, err := s.client.ListDomainsWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing simpledb domains: %w", err)
		}
		for _, n := range out.DomainNames {
			names = append(names, aws.StringValue(n))
		}
		if aws.StringValue(out.NextToken) == "" {
			return names, nil
		}
		input.NextToken = out.NextToken
	}
}

func (s *SimpleDBStore) CreateDomain(ctx context.Context, name string) error {
	slog.Debug("SimpleDBStore.CreateDomain() - create domain", "domain", name)
	_, err := s.client.CreateDomainWithContext(ctx, &simpledb.CreateDomainInput{DomainName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", fault.ErrDomainCreateFailed, name, err)
	}
	return nil
}

func (s *SimpleDBStore) DeleteDomain(ctx context.Context, name string) error {
	slog.Debug("SimpleDBStore.DeleteDomain() - delete domain", "domain", name)
	_, err := s.client.DeleteDomainWithContext(ctx, &simpledb.DeleteDomainInput{DomainName: aws.String(name)})
	if err != nil {
		return fmt.Errorf("deleting simpledb domain %s: %w", name, sdbError(err, name))
	}
	return nil
}

func fromSimpleDB(in []*simpledb.Attribute) []Attribute {
	attrs := make([]Attribute, 0, len(in))
	for _, a := range in {
		attrs = append(attrs, Attribute{Name: aws.StringValue(a.Name), Value: aws.StringValue(a.Value)})
	}
	return attrs
}

func (s *SimpleDBStore) GetAttributes(ctx context.Context, domain, item string) ([]Attribute, error) {
	out, err := s.client.GetAttributesWithContext(ctx, &simpledb.GetAttributesInput{
		DomainName:     aws.String(domain),
		ItemName:       aws.String(item),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting simpledb attributes %s/%s: %w", domain, item, sdbError(err, domain))
	}
	return fromSimpleDB(out.Attributes), nil
}

// PutAttributes replaces the named attributes. More than
// SIMPLEDB_MAX_ATTRIBUTES attributes are sent in several calls.
func (s *SimpleDBStore) PutAttributes(ctx context.Context, domain, item string, attrs []Attribute) error {
	slog.Debug("SimpleDBStore.PutAttributes() - put attributes", "domain", domain, "item", item, "count", len(attrs))
	for start := 0; start < len(attrs); start += SIMPLEDB_MAX_ATTRIBUTES {
		end := min(start+SIMPLEDB_MAX_ATTRIBUTES, len(attrs))
		replace := make([]*simpledb.ReplaceableAttribute, 0, end-start)
		for _, a := range attrs[start:end] {
			replace = append(replace, &simpledb.ReplaceableAttribute{
				Name:    aws.String(a.Name),
				Value:   aws.String(a.Value),
				Replace: aws.Bool(true),
			})
		}
		_, err := s.client.PutAttributesWithContext(ctx, &simpledb.PutAttributesInput{
			DomainName: aws.String(domain),
			ItemName:   aws.String(item),
			Attributes: replace,
		})
		if err != nil {
			return fmt.Errorf("putting simpledb attributes %s/%s: %w", domain, item, sdbError(err, domain))
		}
	}
	return nil
}

func (s *SimpleDBStore) DeleteAttributes(ctx context.Context, domain, item string) error {
	slog.Debug("SimpleDBStore.DeleteAttributes() - delete item", "domain", domain, "item", item)
	_, err := s.client.DeleteAttributesWithContext(ctx, &simpledb.DeleteAttributesInput{
		DomainName: aws.String(domain),
		ItemName:   aws.String(item),
	})
	if err != nil {
		return fmt.Errorf("deleting simpledb item %s/%s: %w", domain, item, sdbError(err, domain))
	}
	return nil
}

// Select runs q.SelectExpression(domain), following NextToken until the
// result set or the limit is exhausted.
func (s *SimpleDBStore) Select(ctx context.Context, domain string, q Query) ([]Record, error) {
	records := make([]Record, 0)
	input := &simpledb.SelectInput{
		SelectExpression: aws.String(q.SelectExpression(domain)),
		ConsistentRead:   aws.Bool(true),
	}
	for {
		out, err := s.client.SelectWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("selecting from simpledb domain %s: %w", domain, sdbError(err, domain))
		}
		for _, it := range out.Items {
			records = append(records, Record{Name: aws.StringValue(it.Name), Attributes: fromSimpleDB(it.Attributes)})
			if q.Limit > 0 && len(records) >= q.Limit {
				return records, nil
			}
		}
		if aws.StringValue(out.NextToken) == "" {
			return records, nil
		}
		input.NextToken = out.NextToken
	}
}
