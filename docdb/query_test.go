package docdb

import (
	"errors"
	"testing"
)

func testDocs() []Document {
	return []Document{
		{"_id": int64(1), "account": "alice", "balance": 10.5, "tags": []interface{}{"a", "b"}, "meta": map[string]interface{}{"level": int64(3)}},
		{"_id": int64(2), "account": "bob", "balance": int64(3), "tags": []interface{}{"b"}},
		{"_id": int64(3), "account": "carol", "balance": "7", "frozen": true},
		{"_id": int64(4), "account": "dave", "balance": nil},
	}
}

func ids(docs []Document) []int64 {
	out := make([]int64, len(docs))
	for i, d := range docs {
		out[i] = d["_id"].(int64)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []int64
	}{
		{"empty", Query{}, []int64{1, 2, 3, 4}},
		{"equality", Query{"account": "bob"}, []int64{2}},
		{"int equals float", Query{"balance": 3.0}, []int64{2}},
		{"array membership", Query{"tags": "b"}, []int64{1, 2}},
		{"whole array", Query{"tags": []interface{}{"b"}}, []int64{2}},
		{"dotted path", Query{"meta.level": int64(3)}, []int64{1}},
		{"array index", Query{"tags.1": "b"}, []int64{1}},
		{"null", Query{"balance": nil}, []int64{4}},
		{"gt numbers only", Query{"balance": Query{"$gt": int64(5)}}, []int64{1}},
		{"range", Query{"balance": Query{"$gte": int64(3), "$lt": int64(10)}}, []int64{2}},
		{"lte string", Query{"balance": Query{"$lte": "9"}}, []int64{3}},
		{"ne", Query{"account": Query{"$ne": "bob"}}, []int64{1, 3, 4}},
		{"in", Query{"account": Query{"$in": []interface{}{"alice", "dave", "zed"}}}, []int64{1, 4}},
		{"nin", Query{"tags": Query{"$nin": []interface{}{"a"}}}, []int64{2, 3, 4}},
		{"exists", Query{"frozen": Query{"$exists": true}}, []int64{3}},
		{"missing", Query{"frozen": Query{"$exists": false}}, []int64{1, 2, 4}},
		{"or", Query{"$or": []interface{}{Query{"account": "alice"}, Query{"frozen": true}}}, []int64{1, 3}},
		{"and", Query{"$and": []interface{}{Query{"tags": "b"}, Query{"account": "bob"}}}, []int64{2}},
		{"nor", Query{"$nor": []interface{}{Query{"account": "alice"}, Query{"account": "bob"}}}, []int64{3, 4}},
		{"embedded document", Query{"meta": map[string]interface{}{"level": int64(3)}}, []int64{1}},
	}
	for _, tc := range tests {
		have, err := Select(testDocs(), tc.query, FindOptions{})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !equalIDs(ids(have), tc.want) {
			t.Errorf("%s: have %v want %v", tc.name, ids(have), tc.want)
		}
	}
}

func TestInvalidQuery(t *testing.T) {
	for _, q := range []Query{
		{"$where": "true"},
		{"a": Query{"$regex": "x"}},
		{"a": Query{"$in": "x"}},
		{"a": Query{"$exists": int64(1)}},
		{"$or": []interface{}{}},
		{"$and": []interface{}{"x"}},
	} {
		if err := ValidateQuery(q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("%v: have %v", q, err)
		}
		if !IsRequestError(ValidateQuery(q)) {
			t.Errorf("%v: should be a request error", q)
		}
	}
}

func TestCompareOrder(t *testing.T) {
	ordered := []interface{}{
		nil,
		int64(-1),
		0.5,
		int64(2),
		"a",
		"b",
		map[string]interface{}{"a": int64(1)},
		[]interface{}{int64(1)},
		false,
		true,
	}
	for i := 1; i < len(ordered); i++ {
		if c := Compare(ordered[i-1], ordered[i]); c >= 0 {
			t.Errorf("Compare(%v, %v) = %d, want < 0", ordered[i-1], ordered[i], c)
		}
	}
}

func TestSelectSortAndPage(t *testing.T) {
	docs := []Document{
		{"_id": int64(1), "score": int64(5)},
		{"_id": int64(2), "score": int64(9)},
		{"_id": int64(3), "score": int64(5)},
		{"_id": int64(4), "score": int64(1)},
	}
	have, err := Select(docs, Query{}, FindOptions{Indexes: []SortField{{Index: "score", Descending: true}}})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{2, 1, 3, 4}; !equalIDs(ids(have), want) {
		t.Fatalf("descending: have %v want %v", ids(have), want)
	}
	have, _ = Select(docs, Query{}, FindOptions{Limit: 2, Offset: 1, Indexes: []SortField{{Index: "score"}}})
	if want := []int64{1, 3}; !equalIDs(ids(have), want) {
		t.Fatalf("paged: have %v want %v", ids(have), want)
	}
	have, _ = Select(docs, Query{}, FindOptions{Offset: 10})
	if len(have) != 0 {
		t.Fatalf("offset past end: have %v", ids(have))
	}
	if _, err := Select(docs, Query{}, FindOptions{Offset: -1}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("negative offset: have %v", err)
	}
}

func TestLimitClamp(t *testing.T) {
	docs := make([]Document, 1500)
	for i := range docs {
		docs[i] = Document{"_id": int64(i + 1)}
	}
	for _, limit := range []int{0, 5000} {
		have, err := Select(docs, Query{}, FindOptions{Limit: limit})
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != 1000 {
			t.Errorf("limit %d: have %d rows", limit, len(have))
		}
	}
}

func TestCheckSort(t *testing.T) {
	if err := CheckSort([]SortField{{Index: "_id"}, {Index: "score"}}, []string{"score"}); err != nil {
		t.Fatalf("declared index rejected: %v", err)
	}
	if err := CheckSort([]SortField{{Index: "other"}}, []string{"score"}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("undeclared index: have %v", err)
	}
}

func TestNormalizeAndCopy(t *testing.T) {
	doc := Normalize(map[string]interface{}{
		"a": 3.0,
		"b": 2.5,
		"c": []interface{}{1.0, map[string]interface{}{"d": 4.0}},
	}).(map[string]interface{})
	if doc["a"] != int64(3) || doc["b"] != 2.5 {
		t.Fatalf("normalize: %v", doc)
	}
	cp := CopyDocument(doc)
	cp["c"].([]interface{})[1].(map[string]interface{})["d"] = "changed"
	if doc["c"].([]interface{})[1].(map[string]interface{})["d"] != int64(4) {
		t.Fatalf("copy shares nested state")
	}
}

func TestValidTableName(t *testing.T) {
	for name, want := range map[string]bool{
		"tokens_balances": true,
		"abc123":          true,
		"":                false,
		"a-b":             false,
		"a.b":             false,
	} {
		if have := ValidTableName(name); have != want {
			t.Errorf("ValidTableName(%q): have %v want %v", name, have, want)
		}
	}
}
