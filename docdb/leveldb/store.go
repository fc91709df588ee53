package leveldb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/inconshreveable/log15"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tos-network/ssc/core/types"
	"github.com/tos-network/ssc/docdb"
)

// kv is the part of the key-value API shared by *leveldb.DB and
// *leveldb.Transaction.
type kv interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
}

// store implements docdb.Database on top of a kv.
type store struct {
	kv        kv
	contracts *lru.ARCCache    // name -> *types.Contract, committed state only
	blocks    *fastcache.Cache // block records are immutable once written
	touched   map[string]struct{}
	pending   map[string]struct{} // block keys written by an open Tx, kept out of the cache
	log       log.Logger
}

var _ docdb.Database = (*store)(nil)

func (s *store) get(key []byte) ([]byte, error) {
	blob, err := s.kv.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return blob, err
}

// cacheable reports whether the committed contract cache may serve name.
func (s *store) cacheable(name string) bool {
	if s.touched == nil {
		return true
	}
	_, ok := s.touched[name]
	return !ok
}

func (s *store) FindContract(name string) (*types.Contract, error) {
	if s.cacheable(name) {
		if cached, ok := s.contracts.Get(name); ok {
			return cached.(*types.Contract).Copy(), nil
		}
	}
	blob, err := s.get(contractKey(name))
	if err != nil || blob == nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", name, err)
	}
	contract := new(types.Contract)
	if err := json.Unmarshal(raw, contract); err != nil {
		return nil, fmt.Errorf("contract %s: %w", name, err)
	}
	if contract.Tables == nil {
		contract.Tables = make(map[string]types.TableMeta)
	}
	if s.cacheable(name) {
		s.contracts.Add(name, contract.Copy())
	}
	return contract, nil
}

func (s *store) putContract(contract *types.Contract) error {
	raw, err := json.Marshal(contract)
	if err != nil {
		return err
	}
	if err := s.kv.Put(contractKey(contract.Name), snappy.Encode(nil, raw), nil); err != nil {
		return err
	}
	if s.touched == nil {
		s.contracts.Add(contract.Name, contract.Copy())
	} else {
		s.touched[contract.Name] = struct{}{}
	}
	return nil
}

func (s *store) AddContract(contract *types.Contract) error {
	exists, err := s.kv.Has(contractKey(contract.Name), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", docdb.ErrContractExists, contract.Name)
	}
	s.log.Debug("Adding contract", "name", contract.Name, "owner", contract.Owner)
	return s.putContract(contract)
}

func (s *store) UpdateContract(contract *types.Contract) error {
	exists, err := s.kv.Has(contractKey(contract.Name), nil)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", docdb.ErrContractNotFound, contract.Name)
	}
	s.log.Debug("Updating contract", "name", contract.Name, "version", contract.Version)
	return s.putContract(contract)
}

func (s *store) Table(table string) (*docdb.TableInfo, error) {
	if !docdb.ValidTableName(table) {
		return nil, fmt.Errorf("%w: %q", docdb.ErrInvalidTableName, table)
	}
	blob, err := s.get(tableKey(table))
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %s", docdb.ErrTableNotFound, table)
	}
	info := new(docdb.TableInfo)
	if err := json.Unmarshal(blob, info); err != nil {
		return nil, fmt.Errorf("table %s: %w", table, err)
	}
	return info, nil
}

func (s *store) putTable(table string, info *docdb.TableInfo) error {
	blob, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.kv.Put(tableKey(table), blob, nil)
}

func (s *store) TableExists(table string) (bool, error) {
	if !docdb.ValidTableName(table) {
		return false, nil
	}
	return s.kv.Has(tableKey(table), nil)
}

func (s *store) CreateTable(table string, indexes []string, primaryKey []string) (bool, error) {
	if !docdb.ValidTableName(table) {
		return false, fmt.Errorf("%w: %q", docdb.ErrInvalidTableName, table)
	}
	exists, err := s.kv.Has(tableKey(table), nil)
	if err != nil || exists {
		return false, err
	}
	info := &docdb.TableInfo{
		Indexes:    appendNew(nil, indexes),
		PrimaryKey: append([]string(nil), primaryKey...),
		NextID:     1,
	}
	if err := s.putTable(table, info); err != nil {
		return false, err
	}
	s.log.Debug("Created table", "table", table, "indexes", len(info.Indexes))
	return true, nil
}

func (s *store) AddIndexes(table string, indexes []string) (int, error) {
	info, err := s.Table(table)
	if err != nil {
		return 0, err
	}
	before := len(info.Indexes)
	info.Indexes = appendNew(info.Indexes, indexes)
	added := len(info.Indexes) - before
	if added == 0 {
		return 0, nil
	}
	return added, s.putTable(table, info)
}

// appendNew appends the names of add that are not already in list.
func appendNew(list []string, add []string) []string {
	seen := make(map[string]bool, len(list))
	for _, name := range list {
		seen[name] = true
	}
	for _, name := range add {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		list = append(list, name)
	}
	return list
}

func (s *store) scan(table string) ([]docdb.Document, error) {
	it := s.kv.NewIterator(util.BytesPrefix(recordRange(table)), nil)
	defer it.Release()

	var docs []docdb.Document
	for it.Next() {
		doc, err := decodeDocument(it.Value())
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		docs = append(docs, doc)
	}
	return docs, it.Error()
}

func (s *store) Find(table string, query docdb.Query, opts docdb.FindOptions) ([]docdb.Document, error) {
	info, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	if err := docdb.CheckSort(opts.Indexes, info.Indexes); err != nil {
		return nil, err
	}
	if err := docdb.ValidateQuery(query); err != nil {
		return nil, err
	}
	docs, err := s.scan(table)
	if err != nil {
		return nil, err
	}
	return docdb.Select(docs, query, opts)
}

func (s *store) FindOne(table string, query docdb.Query) (docdb.Document, error) {
	docs, err := s.Find(table, query, docdb.FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (s *store) Insert(table string, doc docdb.Document) (docdb.Document, error) {
	info, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	record := docdb.CopyDocument(doc)
	if record == nil {
		record = make(docdb.Document)
	}
	id := info.NextID
	record[docdb.IDField] = id

	if len(info.PrimaryKey) > 0 {
		primary, err := primaryValue(record, info.PrimaryKey)
		if err != nil {
			return nil, err
		}
		key := uniqueKey(table, primary)
		taken, err := s.kv.Has(key, nil)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: %s %s", docdb.ErrDuplicateKey, table, primary)
		}
		if err := s.kv.Put(key, encodeNumber(uint64(id)), nil); err != nil {
			return nil, err
		}
	}
	if err := s.putRecord(table, uint64(id), record); err != nil {
		return nil, err
	}
	info.NextID++
	if err := s.putTable(table, info); err != nil {
		return nil, err
	}
	return docdb.CopyDocument(record), nil
}

func (s *store) putRecord(table string, id uint64, record docdb.Document) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", docdb.ErrInvalidDocument, err)
	}
	return s.kv.Put(recordKey(table, id), blob, nil)
}

func (s *store) record(table string, id uint64) (docdb.Document, error) {
	blob, err := s.get(recordKey(table, id))
	if err != nil || blob == nil {
		return nil, err
	}
	return decodeDocument(blob)
}

func (s *store) Update(table string, doc docdb.Document, unsets docdb.Document) error {
	info, err := s.Table(table)
	if err != nil {
		return err
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	old, err := s.record(table, id)
	if err != nil || old == nil {
		return err
	}
	updated := docdb.CopyDocument(old)
	for k, v := range docdb.CopyDocument(doc) {
		updated[k] = v
	}
	for k := range unsets {
		if k != docdb.IDField {
			delete(updated, k)
		}
	}
	updated[docdb.IDField] = int64(id)

	if len(info.PrimaryKey) > 0 {
		before, err := primaryValue(old, info.PrimaryKey)
		if err != nil {
			return err
		}
		after, err := primaryValue(updated, info.PrimaryKey)
		if err != nil {
			return err
		}
		if !bytes.Equal(before, after) {
			taken, err := s.kv.Has(uniqueKey(table, after), nil)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s %s", docdb.ErrDuplicateKey, table, after)
			}
			if err := s.kv.Delete(uniqueKey(table, before), nil); err != nil {
				return err
			}
			if err := s.kv.Put(uniqueKey(table, after), encodeNumber(id), nil); err != nil {
				return err
			}
		}
	}
	return s.putRecord(table, id, updated)
}

func (s *store) Remove(table string, doc docdb.Document) error {
	info, err := s.Table(table)
	if err != nil {
		return err
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	old, err := s.record(table, id)
	if err != nil || old == nil {
		return err
	}
	if len(info.PrimaryKey) > 0 {
		primary, err := primaryValue(old, info.PrimaryKey)
		if err != nil {
			return err
		}
		if err := s.kv.Delete(uniqueKey(table, primary), nil); err != nil {
			return err
		}
	}
	return s.kv.Delete(recordKey(table, id), nil)
}

// putBlockInfo writes a block record. Records written inside a transaction
// reach the shared cache only after they are read back once committed.
func (s *store) putBlockInfo(number uint64, info docdb.Document) error {
	blob, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: %v", docdb.ErrInvalidDocument, err)
	}
	key := blockKey(number)
	if err := s.kv.Put(key, blob, nil); err != nil {
		return err
	}
	if s.pending != nil {
		s.pending[string(key)] = struct{}{}
		return nil
	}
	s.blocks.Set(key, blob)
	return nil
}

func (s *store) GetBlockInfo(number uint64) (docdb.Document, error) {
	key := blockKey(number)
	if _, ok := s.pending[string(key)]; ok {
		blob, err := s.get(key)
		if err != nil || blob == nil {
			return nil, err
		}
		return decodeDocument(blob)
	}
	blob, ok := s.blocks.HasGet(nil, key)
	if !ok {
		var err error
		if blob, err = s.get(key); err != nil || blob == nil {
			return nil, err
		}
		s.blocks.Set(key, blob)
	}
	return decodeDocument(blob)
}

func decodeDocument(blob []byte) (docdb.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var doc docdb.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return docdb.Normalize(doc).(docdb.Document), nil
}

// documentID extracts the numeric _id of doc.
func documentID(doc docdb.Document) (uint64, error) {
	switch id := docdb.Normalize(doc[docdb.IDField]).(type) {
	case int64:
		if id > 0 {
			return uint64(id), nil
		}
	case float64:
		if id > 0 && id == math.Trunc(id) && id <= math.MaxInt64 {
			return uint64(id), nil
		}
	}
	return 0, docdb.ErrMissingID
}

// primaryValue encodes the primary key fields of doc. Missing fields count
// as null.
func primaryValue(doc docdb.Document, fields []string) ([]byte, error) {
	values := make([]interface{}, len(fields))
	for i, f := range fields {
		values[i], _ = docdb.Lookup(doc, f)
	}
	blob, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docdb.ErrInvalidDocument, err)
	}
	return blob, nil
}
