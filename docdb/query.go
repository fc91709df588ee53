package docdb

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tos-network/ssc/params"
)

// Match reports whether doc satisfies query. A query is a document of
// field conditions that must all hold. A field condition is either a value,
// matched by equality (an array field also matches when one of its
// elements is equal), or an operator document using $eq, $ne, $gt, $gte,
// $lt, $lte, $in, $nin and $exists. The top-level operators $and, $or and
// $nor combine lists of queries. Field names may be dotted paths into
// embedded documents and arrays.
func Match(doc Document, query Query) (bool, error) {
	for key, cond := range query {
		ok, err := matchClause(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ValidateQuery checks every clause of query without matching it.
func ValidateQuery(query Query) error {
	for key, cond := range query {
		switch key {
		case "$and", "$or", "$nor":
			list, ok := cond.([]interface{})
			if !ok || len(list) == 0 {
				return invalid("%s needs a non-empty array", key)
			}
			for _, item := range list {
				sub, ok := item.(map[string]interface{})
				if !ok {
					return invalid("%s entries must be documents", key)
				}
				if err := ValidateQuery(sub); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return invalid("unknown top-level operator %s", key)
		}
		ops, ok := operators(cond)
		if !ok {
			continue
		}
		for op, arg := range ops {
			if _, err := matchOperator(nil, false, op, arg); err != nil {
				return err
			}
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

func matchClause(doc Document, key string, cond interface{}) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		list, ok := cond.([]interface{})
		if !ok || len(list) == 0 {
			return false, invalid("%s needs a non-empty array", key)
		}
		var matched bool
		for _, item := range list {
			sub, ok := item.(map[string]interface{})
			if !ok {
				return false, invalid("%s entries must be documents", key)
			}
			ok, err := Match(doc, sub)
			if err != nil {
				return false, err
			}
			if key == "$and" && !ok {
				return false, nil
			}
			matched = matched || ok
		}
		switch key {
		case "$or":
			return matched, nil
		case "$nor":
			return !matched, nil
		}
		return true, nil
	}
	if strings.HasPrefix(key, "$") {
		return false, invalid("unknown top-level operator %s", key)
	}
	value, found := Lookup(doc, key)
	if ops, ok := operators(cond); ok {
		for op, arg := range ops {
			ok, err := matchOperator(value, found, op, arg)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return found && matchEqual(value, cond), nil
}

// operators returns cond as an operator document if all its keys are
// operators.
func operators(cond interface{}) (map[string]interface{}, bool) {
	m, ok := cond.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperator(value interface{}, found bool, op string, arg interface{}) (bool, error) {
	switch op {
	case "$eq":
		return found && matchEqual(value, arg), nil
	case "$ne":
		return !(found && matchEqual(value, arg)), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !found {
			return false, nil
		}
		return matchAny(value, func(v interface{}) bool {
			if class(v) != class(arg) {
				return false
			}
			c := Compare(v, arg)
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			}
			return c <= 0
		}), nil
	case "$in", "$nin":
		list, ok := arg.([]interface{})
		if !ok {
			return false, invalid("%s needs an array", op)
		}
		in := false
		if found {
			for _, want := range list {
				if matchEqual(value, want) {
					in = true
					break
				}
			}
		}
		if op == "$in" {
			return in, nil
		}
		return !in, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, invalid("$exists needs a boolean")
		}
		return found == want, nil
	}
	return false, invalid("unknown operator %s", op)
}

// matchEqual is equality with array membership.
func matchEqual(value, want interface{}) bool {
	if Compare(value, want) == 0 {
		return true
	}
	if list, ok := value.([]interface{}); ok {
		for _, item := range list {
			if Compare(item, want) == 0 {
				return true
			}
		}
	}
	return false
}

func matchAny(value interface{}, pred func(interface{}) bool) bool {
	if list, ok := value.([]interface{}); ok {
		for _, item := range list {
			if pred(item) {
				return true
			}
		}
		return false
	}
	return pred(value)
}

// Lookup resolves a dotted path in doc. Numeric path segments index into
// arrays.
func Lookup(doc Document, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Type classes in comparison order.
const (
	classNull = iota
	classNumber
	classString
	classObject
	classArray
	classBool
	classOther
)

func class(v interface{}) int {
	switch v.(type) {
	case nil:
		return classNull
	case string:
		return classString
	case bool:
		return classBool
	case map[string]interface{}:
		return classObject
	case []interface{}:
		return classArray
	}
	if _, ok := number(v); ok {
		return classNumber
	}
	return classOther
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Compare orders two JSON values: null before numbers, strings, documents,
// arrays and booleans; values of one type compare naturally.
func Compare(a, b interface{}) int {
	ca, cb := class(a), class(b)
	if ca != cb {
		return cmpInt(ca, cb)
	}
	switch ca {
	case classNumber:
		x, _ := number(a)
		y, _ := number(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		case math.IsNaN(x) || math.IsNaN(y):
			return cmpBool(math.IsNaN(y), math.IsNaN(x))
		}
		return 0
	case classString:
		return strings.Compare(a.(string), b.(string))
	case classBool:
		return cmpBool(a.(bool), b.(bool))
	case classArray:
		x, y := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := Compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(x), len(y))
	case classObject:
		x, y := a.(map[string]interface{}), b.(map[string]interface{})
		kx, ky := sortedKeys(x), sortedKeys(y)
		for i := 0; i < len(kx) && i < len(ky); i++ {
			if c := strings.Compare(kx[i], ky[i]); c != 0 {
				return c
			}
			if c := Compare(x[kx[i]], y[ky[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(kx), len(ky))
	case classOther:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	}
	return 1
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sort orders docs by the given fields, falling back to _id.
func Sort(docs []Document, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := Lookup(docs[i], f.Index)
			b, _ := Lookup(docs[j], f.Index)
			if c := Compare(a, b); c != 0 {
				if f.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return Compare(docs[i][IDField], docs[j][IDField]) < 0
	})
}

// limit resolves the effective result limit of a find.
func (o FindOptions) limit() int {
	if o.Limit <= 0 {
		return params.DefaultFindLimit
	}
	if o.Limit > params.MaxFindLimit {
		return params.MaxFindLimit
	}
	return o.Limit
}

// CheckSort verifies that every sort field is _id or a declared index.
func CheckSort(fields []SortField, indexes []string) error {
	for _, f := range fields {
		if f.Index == IDField {
			continue
		}
		declared := false
		for _, idx := range indexes {
			if idx == f.Index {
				declared = true
				break
			}
		}
		if !declared {
			return invalid("index %q is not declared", f.Index)
		}
	}
	return nil
}

// Select filters, sorts and pages candidate documents according to query
// and opts. Candidates are expected in _id order.
func Select(candidates []Document, query Query, opts FindOptions) ([]Document, error) {
	if opts.Offset < 0 {
		return nil, invalid("negative offset")
	}
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	var out []Document
	for _, doc := range candidates {
		ok, err := Match(doc, query)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	if len(opts.Indexes) > 0 {
		Sort(out, opts.Indexes)
	}
	if opts.Offset >= len(out) {
		return []Document{}, nil
	}
	out = out[opts.Offset:]
	if limit := opts.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Normalize converts a decoded JSON value into the canonical host form:
// integral numbers become int64, other numbers float64.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case map[string]interface{}:
		for k, item := range x {
			x[k] = Normalize(item)
		}
		return x
	case []interface{}:
		for i, item := range x {
			x[i] = Normalize(item)
		}
		return x
	}
	return v
}

// CopyDocument returns a deep copy of doc.
func CopyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return copyValue(doc).(map[string]interface{})
}

func copyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = copyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = copyValue(item)
		}
		return out
	}
	return v
}
