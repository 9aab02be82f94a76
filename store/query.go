package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/guyvdb/tierdoc/fault"
)

// ITEM_NAME_PARAMETER is the filter parameter bound to the record's item
// name by backends that evaluate filters locally.
const ITEM_NAME_PARAMETER string = "itemName"

// Query selects records from a domain. Filter is an opaque expression passed
// through to the backend; an empty filter matches every record. A Limit of
// zero or less means no limit.
type Query struct {
	Filter string
	Limit  int
}

func (q Query) String() string {
	var b strings.Builder
	if q.Filter != "" {
		b.WriteString("where ")
		b.WriteString(q.Filter)
	}
	if q.Limit > 0 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("limit ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	return b.String()
}

// SelectExpression renders q as a select over the given domain in the
// SimpleDB select syntax.
func (q Query) SelectExpression(domain string) string {
	expr := "select * from `" + strings.ReplaceAll(domain, "`", "``") + "`"
	if rest := q.String(); rest != "" {
		expr += " " + rest
	}
	return expr
}

// filter is a compiled query filter evaluated against a record's wire
// attributes.
type filter struct {
	eval gval.Evaluable
}

func compileFilter(expr string) (*filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	eval, err := gval.Full().NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", fault.ErrInvalidFilter, expr, err)
	}
	return &filter{eval: eval}, nil
}

// match reports whether the record satisfies the filter. A record the
// expression cannot be evaluated against, for instance because it lacks a
// referenced attribute, does not match.
func (f *filter) match(ctx context.Context, r Record) bool {
	if f == nil {
		return true
	}
	params := make(map[string]interface{}, len(r.Attributes)+1)
	for _, a := range r.Attributes {
		params[a.Name] = a.Value
	}
	params[ITEM_NAME_PARAMETER] = r.Name
	ok, err := f.eval.EvalBool(ctx, params)
	if err != nil {
		return false
	}
	return ok
}
