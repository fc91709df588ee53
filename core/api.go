package core

import (
	"encoding/json"
	"math"
	"regexp"

	"github.com/dop251/goja"
	"github.com/tos-network/ssc/accountname"
	"github.com/tos-network/ssc/core/decimal"
	"github.com/tos-network/ssc/core/isolate"
	"github.com/tos-network/ssc/core/types"
	"github.com/tos-network/ssc/crypto"
	"github.com/tos-network/ssc/docdb"
	"github.com/tos-network/ssc/params"
)

// APIObject is the global through which contracts reach the host.
const APIObject = "api"

// callingContractField is added to the payload of every nested call.
const callingContractField = "callingContractInfo"

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// invocation is one run of a contract body: the deployment init call, a
// transaction's action or a nested call. It installs the capability surface
// bound to its contract and block into the isolate.
type invocation struct {
	engine *Engine
	tx     *types.Transaction
	blk    *types.BlockContext
	rules  params.Rules
	depth  int

	contract string
	owner    string
	version  uint64
	action   string
	payload  interface{}
	deploy   bool

	tables map[string]types.TableMeta // tables created by this run
	result *types.ExecutionResult

	iso *isolate.Isolate
}

// binder sets properties and keeps the first error.
type binder struct {
	obj *goja.Object
	err error
}

func (b *binder) set(name string, v interface{}) {
	if b.err == nil {
		b.err = b.obj.Set(name, v)
	}
}

// Install implements isolate.Surface.
func (inv *invocation) Install(iso *isolate.Isolate) error {
	inv.iso = iso
	vm := iso.Runtime()

	payload, err := iso.ToSandbox(inv.payload)
	if err != nil {
		return err
	}
	api := &binder{obj: vm.NewObject()}
	api.set("sender", inv.tx.Sender)
	api.set("owner", inv.owner)
	api.set("refBlockNumber", inv.tx.RefBlockNumber)
	api.set("blockTimestamp", inv.blk.Timestamp)
	api.set("contractVersion", inv.version)
	api.set("transactionId", inv.tx.TransactionID)
	api.set("blockNumber", inv.blk.BlockNumber)
	api.set("action", inv.action)
	api.set("payload", payload)
	api.set(decimal.ConstructorName, iso.Decimals().Constructor())

	db := &binder{obj: vm.NewObject()}
	db.set("createTable", inv.createTable)
	db.set("addIndexes", inv.addIndexes)
	db.set("find", func(call goja.FunctionCall) goja.Value {
		return inv.find(inv.contract, call.Arguments)
	})
	db.set("findInTable", func(call goja.FunctionCall) goja.Value {
		contract, ok := stringArg(call.Argument(0))
		if !ok {
			return goja.Null()
		}
		return inv.find(contract, call.Arguments[1:])
	})
	db.set("findOne", func(call goja.FunctionCall) goja.Value {
		return inv.findOne(inv.contract, call.Argument(0), call.Argument(1))
	})
	db.set("findOneInTable", func(call goja.FunctionCall) goja.Value {
		contract, ok := stringArg(call.Argument(0))
		if !ok {
			return goja.Null()
		}
		return inv.findOne(contract, call.Argument(1), call.Argument(2))
	})
	db.set("findContract", inv.findContract)
	db.set("insert", inv.insert)
	db.set("update", inv.update)
	db.set("remove", inv.remove)
	db.set("tableExists", inv.tableExists)
	if !inv.deploy {
		db.set("getBlockInfo", inv.getBlockInfo)
	}
	if db.err != nil {
		return db.err
	}
	api.set("db", db.obj)

	api.set("SHA256", inv.sha256)
	api.set("checkSignature", inv.checkSignature)
	api.set("random", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(iso.Random())
	})
	api.set("debug", inv.debug)
	api.set("emit", inv.emit)
	api.set("assert", inv.assert)
	api.set("isValidAccountName", func(call goja.FunctionCall) goja.Value {
		name, ok := stringArg(call.Argument(0))
		return vm.ToValue(ok && accountname.Validate(name, inv.rules))
	})
	api.set("logs", inv.logs)

	if !inv.deploy {
		api.set("executeSmartContract", func(call goja.FunctionCall) goja.Value {
			return inv.call(inv.tx.Sender, call.Argument(0), call.Argument(1), call.Argument(2))
		})
		api.set("executeSmartContractAsOwner", func(call goja.FunctionCall) goja.Value {
			return inv.call(inv.owner, call.Argument(0), call.Argument(1), call.Argument(2))
		})
		api.set("transferTokens", func(call goja.FunctionCall) goja.Value {
			return inv.transfer(inv.contract, call)
		})
		if caller, ok := inv.callingContract(); ok {
			api.set("transferTokensFromCallingContract", func(call goja.FunctionCall) goja.Value {
				return inv.transfer(caller, call)
			})
		}
	}
	if api.err != nil {
		return api.err
	}
	return vm.Set(APIObject, api.obj)
}

// storeFault reports a store error to the sandbox. Errors caused by the
// arguments become JavaScript errors; anything else aborts the transaction.
func (inv *invocation) storeFault(err error) goja.Value {
	if docdb.IsRequestError(err) {
		inv.iso.Throw(err.Error())
	}
	inv.iso.Abort(err)
	return goja.Undefined()
}

// host converts a sandbox argument, throwing if it cannot leave the sandbox.
func (inv *invocation) host(v goja.Value) interface{} {
	out, err := inv.iso.FromSandbox(v)
	if err != nil {
		inv.iso.Throw(err.Error())
	}
	return out
}

func (inv *invocation) sandbox(v interface{}) goja.Value {
	out, err := inv.iso.ToSandbox(v)
	if err != nil {
		inv.iso.Throw(err.Error())
	}
	return out
}

func (inv *invocation) createTable(call goja.FunctionCall) goja.Value {
	vm := inv.iso.Runtime()
	name, ok := stringArg(call.Argument(0))
	if !ok || !alphanumeric.MatchString(name) {
		return vm.ToValue(false)
	}
	indexes, ok := indexNames(inv.host(call.Argument(1)))
	if !ok {
		return vm.ToValue(false)
	}
	var primaryKey []string
	if opts, ok := inv.host(call.Argument(2)).(map[string]interface{}); ok {
		if pk, present := opts["primaryKey"]; present {
			if primaryKey, ok = indexNames(pk); !ok {
				return vm.ToValue(false)
			}
		}
	}
	table := types.TableKey(inv.contract, name)
	created, err := inv.engine.db.CreateTable(table, indexes, primaryKey)
	if err != nil {
		return inv.storeFault(err)
	}
	if created {
		inv.tables[table] = types.TableMeta{
			NbIndexes:  len(indexes),
			PrimaryKey: primaryKey,
		}
	}
	return vm.ToValue(created)
}

func (inv *invocation) addIndexes(call goja.FunctionCall) goja.Value {
	vm := inv.iso.Runtime()
	name, ok := stringArg(call.Argument(0))
	if !ok {
		return vm.ToValue(0)
	}
	indexes, ok := indexNames(inv.host(call.Argument(1)))
	if !ok || len(indexes) == 0 {
		return vm.ToValue(0)
	}
	table := types.TableKey(inv.contract, name)
	if exists, err := inv.engine.db.TableExists(table); err != nil || !exists {
		if err != nil {
			return inv.storeFault(err)
		}
		return vm.ToValue(0)
	}
	added, err := inv.engine.db.AddIndexes(table, indexes)
	if err != nil {
		return inv.storeFault(err)
	}
	if added > 0 {
		info, err := inv.engine.db.Table(table)
		if err != nil {
			return inv.storeFault(err)
		}
		meta, known := inv.tables[table]
		if !known {
			contract, err := inv.engine.db.FindContract(inv.contract)
			if err != nil {
				return inv.storeFault(err)
			}
			if contract != nil {
				meta = contract.Tables[table]
			}
		}
		meta.NbIndexes = len(info.Indexes)
		inv.tables[table] = meta
	}
	return vm.ToValue(added)
}

// existingTable resolves a table of contract, reporting false if it does
// not exist.
func (inv *invocation) existingTable(contract string, arg goja.Value) (string, bool) {
	name, ok := stringArg(arg)
	if !ok || !alphanumeric.MatchString(name) {
		return "", false
	}
	table := types.TableKey(contract, name)
	exists, err := inv.engine.db.TableExists(table)
	if err != nil {
		inv.storeFault(err)
		return "", false
	}
	return table, exists
}

func (inv *invocation) query(arg goja.Value) (docdb.Query, bool) {
	if unset(arg) {
		return docdb.Query{}, true
	}
	q, ok := inv.host(arg).(map[string]interface{})
	return q, ok
}

// find implements find and findInTable. args are the table, the query, the
// limit, the offset and the sort indexes.
func (inv *invocation) find(contract string, args []goja.Value) goja.Value {
	arg := func(i int) goja.Value {
		if i < len(args) {
			return args[i]
		}
		return goja.Undefined()
	}
	table, ok := inv.existingTable(contract, arg(0))
	if !ok {
		return goja.Null()
	}
	query, ok := inv.query(arg(1))
	if !ok {
		return goja.Null()
	}
	opts := docdb.FindOptions{Limit: params.DefaultFindLimit}
	if !unset(arg(2)) {
		limit, ok := integerArg(arg(2))
		if !ok || limit <= 0 || limit > params.MaxFindLimit {
			return goja.Null()
		}
		opts.Limit = int(limit)
	}
	if !unset(arg(3)) {
		offset, ok := integerArg(arg(3))
		if !ok || offset < 0 {
			return goja.Null()
		}
		opts.Offset = int(offset)
	}
	if !unset(arg(4)) {
		indexes, ok := sortFields(inv.host(arg(4)))
		if !ok {
			return goja.Null()
		}
		opts.Indexes = indexes
	}
	docs, err := inv.engine.db.Find(table, query, opts)
	if err != nil {
		return inv.storeFault(err)
	}
	return inv.sandbox(documents(docs))
}

func (inv *invocation) findOne(contract string, tableArg, queryArg goja.Value) goja.Value {
	table, ok := inv.existingTable(contract, tableArg)
	if !ok {
		return goja.Null()
	}
	query, ok := inv.query(queryArg)
	if !ok {
		return goja.Null()
	}
	doc, err := inv.engine.db.FindOne(table, query)
	if err != nil {
		return inv.storeFault(err)
	}
	if doc == nil {
		return goja.Null()
	}
	return inv.sandbox(doc)
}

func (inv *invocation) findContract(call goja.FunctionCall) goja.Value {
	name, ok := stringArg(call.Argument(0))
	if !ok {
		return goja.Null()
	}
	contract, err := inv.engine.db.FindContract(name)
	if err != nil {
		return inv.storeFault(err)
	}
	if contract == nil {
		return goja.Null()
	}
	return inv.sandbox(contract)
}

// record reads a document argument of insert, update and remove.
func (inv *invocation) record(arg goja.Value) (docdb.Document, bool) {
	doc, ok := inv.host(arg).(map[string]interface{})
	return doc, ok
}

func (inv *invocation) insert(call goja.FunctionCall) goja.Value {
	table, ok := inv.existingTable(inv.contract, call.Argument(0))
	if !ok {
		return goja.Null()
	}
	doc, ok := inv.record(call.Argument(1))
	if !ok {
		return goja.Null()
	}
	stored, err := inv.engine.db.Insert(table, doc)
	if err != nil {
		return inv.storeFault(err)
	}
	return inv.sandbox(stored)
}

func (inv *invocation) update(call goja.FunctionCall) goja.Value {
	table, ok := inv.existingTable(inv.contract, call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	doc, ok := inv.record(call.Argument(1))
	if !ok {
		return goja.Undefined()
	}
	var unsets docdb.Document
	if !unset(call.Argument(2)) {
		if unsets, ok = inv.record(call.Argument(2)); !ok {
			return goja.Undefined()
		}
	}
	if err := inv.engine.db.Update(table, doc, unsets); err != nil {
		return inv.storeFault(err)
	}
	return goja.Undefined()
}

func (inv *invocation) remove(call goja.FunctionCall) goja.Value {
	table, ok := inv.existingTable(inv.contract, call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	doc, ok := inv.record(call.Argument(1))
	if !ok {
		return goja.Undefined()
	}
	if err := inv.engine.db.Remove(table, doc); err != nil {
		return inv.storeFault(err)
	}
	return goja.Undefined()
}

func (inv *invocation) tableExists(call goja.FunctionCall) goja.Value {
	_, exists := inv.existingTable(inv.contract, call.Argument(0))
	return inv.iso.Runtime().ToValue(exists)
}

func (inv *invocation) getBlockInfo(call goja.FunctionCall) goja.Value {
	number, ok := integerArg(call.Argument(0))
	if !ok || number < 0 {
		return goja.Null()
	}
	info, err := inv.engine.db.GetBlockInfo(uint64(number))
	if err != nil {
		return inv.storeFault(err)
	}
	if info == nil {
		return goja.Null()
	}
	return inv.sandbox(info)
}

// text is the string a value hashes or logs as: strings verbatim, anything
// else through JSON.stringify.
func (inv *invocation) text(v goja.Value) string {
	if s, ok := stringArg(v); ok {
		return s
	}
	s, err := inv.iso.Stringify(v)
	if err != nil {
		inv.iso.Throw(err.Error())
	}
	return s
}

func (inv *invocation) sha256(call goja.FunctionCall) goja.Value {
	return inv.iso.Runtime().ToValue(crypto.SHA256HexString(inv.text(call.Argument(0))))
}

func (inv *invocation) checkSignature(call goja.FunctionCall) goja.Value {
	vm := inv.iso.Runtime()
	payload := call.Argument(0)
	if _, isString := stringArg(payload); !isString {
		if _, isObject := payload.(*goja.Object); !isObject {
			return vm.ToValue(false)
		}
	}
	sig, ok1 := stringArg(call.Argument(1))
	pub, ok2 := stringArg(call.Argument(2))
	if !ok1 || !ok2 {
		return vm.ToValue(false)
	}
	data, err := inv.iso.Stringify(payload)
	if s, ok := stringArg(payload); ok {
		data, err = s, nil
	}
	if err != nil {
		return vm.ToValue(false)
	}
	isHash, _ := call.Argument(3).Export().(bool)
	return vm.ToValue(crypto.VerifySignature([]byte(data), isHash, sig, pub))
}

func (inv *invocation) debug(call goja.FunctionCall) goja.Value {
	inv.engine.log.Debug("Contract debug", "contract", inv.contract, "action", inv.action, "msg", inv.text(call.Argument(0)))
	return goja.Undefined()
}

func (inv *invocation) emit(call goja.FunctionCall) goja.Value {
	event, ok := stringArg(call.Argument(0))
	if !ok {
		return inv.iso.Runtime().ToValue(false)
	}
	inv.result.Logs.Events = append(inv.result.Logs.Events, types.Event{
		Contract: inv.contract,
		Event:    event,
		Data:     inv.host(call.Argument(1)),
	})
	return goja.Undefined()
}

func (inv *invocation) assert(call goja.FunctionCall) goja.Value {
	cond := call.Argument(0)
	if !cond.ToBoolean() {
		if msg, ok := stringArg(call.Argument(1)); ok {
			inv.result.Logs.Errors = append(inv.result.Logs.Errors, msg)
		}
	}
	return cond
}

func (inv *invocation) logs(goja.FunctionCall) goja.Value {
	return inv.sandbox(logsValue(inv.result.Logs))
}

// callingContract returns the name of the contract that called this one.
func (inv *invocation) callingContract() (string, bool) {
	payload, ok := inv.payload.(map[string]interface{})
	if !ok {
		return "", false
	}
	info, ok := payload[callingContractField].(map[string]interface{})
	if !ok {
		return "", false
	}
	name, ok := info["name"].(string)
	return name, ok
}

// transfer calls the token ledger's transfer action on behalf of from with
// the neutral sender.
func (inv *invocation) transfer(from string, call goja.FunctionCall) goja.Value {
	args := map[string]interface{}{"from": from}
	for i, field := range []string{"to", "symbol", "quantity", "type"} {
		if v := call.Argument(i); !goja.IsUndefined(v) {
			args[field] = inv.host(v)
		}
	}
	return inv.nested(params.NullAccount, inv.engine.config.TokenContract, inv.engine.config.TokenTransferAction, args)
}

// call implements executeSmartContract and executeSmartContractAsOwner.
func (inv *invocation) call(sender string, contractArg, actionArg, paramsArg goja.Value) goja.Value {
	contract, ok1 := stringArg(contractArg)
	action, ok2 := stringArg(actionArg)
	if !ok1 || !ok2 {
		return goja.Null()
	}
	args := map[string]interface{}{}
	if !unset(paramsArg) {
		m, ok := inv.host(paramsArg).(map[string]interface{})
		if !ok {
			return goja.Null()
		}
		args = m
	}
	return inv.nested(sender, contract, action, args)
}

// nested re-enters the execution pipeline for another contract on the same
// stack and folds its outcome into this invocation's result.
func (inv *invocation) nested(sender, contract, action string, args map[string]interface{}) goja.Value {
	if parent, ok := inv.payload.(map[string]interface{}); ok {
		for _, field := range params.PropagatedPayloadFields {
			if v, ok := parent[field]; ok && truthy(v) {
				args[field] = v
			}
		}
	}
	args[callingContractField] = map[string]interface{}{
		"name":    inv.contract,
		"version": inv.version,
	}
	payload, err := json.Marshal(args)
	if err != nil {
		inv.iso.Throw(err.Error())
	}
	child := &types.Transaction{
		RefBlockNumber: inv.tx.RefBlockNumber,
		TransactionID:  inv.tx.TransactionID,
		Sender:         sender,
		Contract:       contract,
		Action:         action,
		Payload:        string(payload),
	}
	res, err := inv.engine.execute(child, inv.blk, inv.depth+1)
	if err != nil {
		inv.iso.Abort(err)
		return goja.Undefined()
	}
	out := make(map[string]interface{})
	if len(res.Logs.Errors) > 0 {
		inv.result.Logs.Errors = append(inv.result.Logs.Errors, res.Logs.Errors...)
		out["errors"] = logsValue(res.Logs)["errors"]
	}
	if len(res.Logs.Events) > 0 {
		inv.result.Logs.Events = append(inv.result.Logs.Events, res.Logs.Events...)
		out["events"] = logsValue(res.Logs)["events"]
	}
	if res.ExecutedCodeHash != "" {
		out["executedCodeHash"] = res.ExecutedCodeHash
		inv.result.ExecutedCodeHash = chainHash(inv.rules, inv.result.ExecutedCodeHash, res.ExecutedCodeHash)
	}
	return inv.sandbox(out)
}

// logsValue is the JSON-like form of logs handed to contracts.
func logsValue(logs types.Logs) map[string]interface{} {
	errs := make([]interface{}, len(logs.Errors))
	for i, e := range logs.Errors {
		errs[i] = e
	}
	events := make([]interface{}, len(logs.Events))
	for i, ev := range logs.Events {
		events[i] = map[string]interface{}{
			"contract": ev.Contract,
			"event":    ev.Event,
			"data":     ev.Data,
		}
	}
	return map[string]interface{}{"errors": errs, "events": events}
}

func documents(docs []docdb.Document) []interface{} {
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func unset(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func stringArg(v goja.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	if _, isObject := v.(*goja.Object); isObject {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

func integerArg(v goja.Value) (int64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.Export().(type) {
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}

// indexNames reads a list of field names. A missing list is empty.
func indexNames(v interface{}) ([]string, bool) {
	if v == nil {
		return nil, true
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok || name == "" {
			return nil, false
		}
		names = append(names, name)
	}
	return names, true
}

// sortFields reads a list of {index, descending} sort specifications.
func sortFields(v interface{}) ([]docdb.SortField, bool) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	fields := make([]docdb.SortField, 0, len(list))
	for _, item := range list {
		spec, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		index, ok := spec["index"].(string)
		if !ok {
			return nil, false
		}
		descending, _ := spec["descending"].(bool)
		fields = append(fields, docdb.SortField{Index: index, Descending: descending})
	}
	return fields, true
}

// truthy mirrors JavaScript truthiness for host values.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return true
}
