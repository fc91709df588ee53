// Package core implements the contract execution engine: the deployment
// pipeline, the execution pipeline and cross-contract invocation on top of
// per-transaction isolates.
package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set"
	log "github.com/inconshreveable/log15"
	"github.com/tos-network/ssc/accountname"
	"github.com/tos-network/ssc/core/decimal"
	"github.com/tos-network/ssc/core/isolate"
	"github.com/tos-network/ssc/core/rng"
	"github.com/tos-network/ssc/core/types"
	"github.com/tos-network/ssc/crypto"
	"github.com/tos-network/ssc/docdb"
	"github.com/tos-network/ssc/params"
)

// Messages logged by the pipelines.
const (
	errInvalidName    = "invalid contract name"
	errNotOwner       = "you are not allowed to update this contract"
	errDeployParams   = "parameters name and code are mandatory and they must be strings"
	errCodeEncoding   = "invalid contract code encoding"
	errReservedAction = "you cannot trigger this action"
	errNoContract     = "contract doesn't exist"
	errInvalidPayload = "invalid payload"
	errMaxCallDepth   = "maximum call depth exceeded"
)

// Engine runs transactions against a document store. It is not safe for
// concurrent use; the block producer feeds it one transaction at a time.
type Engine struct {
	config Config
	db     docdb.Database
	log    log.Logger
}

// New creates an engine bound to db. Use a block transaction of the store
// as db to make the effects of a block atomic.
func New(config Config, db docdb.Database) (*Engine, error) {
	config, err := config.sanitize()
	if err != nil {
		return nil, err
	}
	return &Engine{
		config: config,
		db:     db,
		log:    log.New("module", "engine"),
	}, nil
}

// Config returns the engine configuration in force.
func (e *Engine) Config() Config { return e.config }

// Apply routes tx to the deployment pipeline or to the execution pipeline.
func (e *Engine) Apply(tx *types.Transaction, blk *types.BlockContext) (*types.ExecutionResult, error) {
	if tx.Contract == params.DeployContract && tx.Action == params.DeployAction {
		return e.Deploy(tx, blk)
	}
	return e.Execute(tx, blk)
}

// Deploy creates or updates the contract described by the payload of tx.
// Per-transaction failures are reported in the result's logs; an error is
// returned only for host faults such as the store becoming unavailable.
func (e *Engine) Deploy(tx *types.Transaction, blk *types.BlockContext) (*types.ExecutionResult, error) {
	var payload types.DeployPayload
	if err := json.Unmarshal([]byte(tx.Payload), &payload); err != nil || payload.Name == nil || payload.Code == nil {
		return types.ErrorResult(errDeployParams), nil
	}
	name := *payload.Name
	if !accountname.IsValidContractName(name) {
		return types.ErrorResult(errInvalidName), nil
	}
	existing, err := e.db.FindContract(name)
	if err != nil {
		return nil, err
	}
	owner := tx.Sender
	if existing != nil && existing.Owner != tx.Sender {
		if tx.Sender != e.config.BootstrapAccount || existing.Owner != params.NullAccount {
			return types.ErrorResult(errNotOwner), nil
		}
		owner = params.NullAccount
	}
	body, ok := decodeBody(*payload.Code)
	if !ok {
		return types.ErrorResult(errCodeEncoding), nil
	}
	code := wrapBody(body)
	codeHash := crypto.SHA256HexString(code)

	version := uint64(1)
	if existing != nil {
		version = existing.Version
	}
	inv := &invocation{
		engine:   e,
		tx:       tx,
		blk:      blk,
		rules:    e.config.Chain.Rules(tx.RefBlockNumber),
		contract: name,
		owner:    owner,
		version:  version,
		action:   params.InitAction,
		payload:  normalizeParams(payload.Params),
		tables:   make(map[string]types.TableMeta),
		result:   &types.ExecutionResult{ExecutedCodeHash: codeHash},
		deploy:   true,
	}
	if err := e.run(inv, code); err != nil {
		if ee, ok := types.AsEngineError(err); ok {
			e.log.Debug("Contract deployment failed", "contract", name, "sender", tx.Sender, "err", ee.Message)
			return types.ErrorResult(ee.Message), nil
		}
		return nil, err
	}

	if existing != nil {
		existing.Owner = owner
		existing.Code = code
		existing.CodeHash = codeHash
		existing.Tables = mergeTables(existing.Tables, inv.tables)
		existing.Version++
		if err := e.db.UpdateContract(existing); err != nil {
			return nil, err
		}
		inv.result.Contract = existing
	} else {
		contract := &types.Contract{
			Name:     name,
			Owner:    owner,
			Code:     code,
			CodeHash: codeHash,
			Tables:   mergeTables(nil, inv.tables),
			Version:  1,
		}
		if err := e.db.AddContract(contract); err != nil {
			return nil, err
		}
		inv.result.Contract = contract
	}
	e.log.Info("Deployed contract", "contract", name, "owner", owner, "version", inv.result.Contract.Version, "hash", codeHash)
	return inv.result, nil
}

// Execute runs the action of tx on its target contract.
func (e *Engine) Execute(tx *types.Transaction, blk *types.BlockContext) (*types.ExecutionResult, error) {
	return e.execute(tx, blk, 0)
}

// execute is the recursive body of Execute. depth counts the cross-contract
// calls between the originating transaction and tx.
func (e *Engine) execute(tx *types.Transaction, blk *types.BlockContext, depth int) (*types.ExecutionResult, error) {
	if depth > e.config.MaxCallDepth {
		return types.ErrorResult(errMaxCallDepth), nil
	}
	if params.IsReservedAction(tx.Action) {
		return types.ErrorResult(errReservedAction), nil
	}
	payload, ok := parsePayload(tx.Payload)
	if !ok {
		return types.ErrorResult(errInvalidPayload), nil
	}
	contract, err := e.db.FindContract(tx.Contract)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return types.ErrorResult(errNoContract), nil
	}
	inv := &invocation{
		engine:   e,
		tx:       tx,
		blk:      blk,
		rules:    e.config.Chain.Rules(tx.RefBlockNumber),
		depth:    depth,
		contract: contract.Name,
		owner:    contract.Owner,
		version:  contract.Version,
		action:   tx.Action,
		payload:  payload,
		tables:   make(map[string]types.TableMeta),
		result:   &types.ExecutionResult{ExecutedCodeHash: contract.CodeHash},
	}
	if err := e.run(inv, contract.Code); err != nil {
		ee, ok := types.AsEngineError(err)
		if !ok {
			return nil, err
		}
		inv.result.Logs.Errors = append(inv.result.Logs.Errors, ee.Message)
	}
	// Tables created by the body exist in the store even if it failed later
	// on, so the contract record must learn about them either way.
	if len(inv.tables) > 0 {
		fresh, err := e.db.FindContract(contract.Name)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			fresh = contract
		}
		fresh.Tables = mergeTables(fresh.Tables, inv.tables)
		if err := e.db.UpdateContract(fresh); err != nil {
			return nil, err
		}
	}
	return inv.result, nil
}

// run executes one invocation in a fresh isolate.
func (e *Engine) run(inv *invocation, code string) error {
	seed := rng.Seed(inv.blk.PrevRefBlockID, inv.blk.RefBlockID, inv.tx.TransactionID)
	cfg := isolate.Config{
		Timeout:          e.config.Timeout,
		MemoryLimit:      e.config.MemoryLimit << 20,
		MaxCallStackSize: e.config.MaxCallStackSize,
		MaxHandles:       e.config.MaxHandles,
		Policy:           decimal.NewPolicy(inv.rules),
		Seed:             seed,
		Now:              parseTimestamp(inv.blk.Timestamp),
	}
	return isolate.Run(cfg, inv, code, isolate.Call{Action: inv.action, Payload: inv.payload})
}

// chainHash folds a nested call's code hash into its parent's hash with the
// combination in force under rules.
func chainHash(rules params.Rules, parent, child string) string {
	if rules.IsChainedCodeHash {
		return crypto.ChainHash(parent, child)
	}
	return crypto.LegacyChainHash(parent, child)
}

// mergeTables returns the union of the table metadata of a stored contract
// and the tables declared by the last run. Existing tables are never
// dropped.
func mergeTables(existing, declared map[string]types.TableMeta) map[string]types.TableMeta {
	names := mapset.NewThreadUnsafeSet()
	for name := range existing {
		names.Add(name)
	}
	added := mapset.NewThreadUnsafeSet()
	for name := range declared {
		added.Add(name)
	}
	merged := make(map[string]types.TableMeta, len(existing)+len(declared))
	for _, item := range names.Union(added).ToSlice() {
		name := item.(string)
		if meta, ok := declared[name]; ok {
			merged[name] = meta
		} else {
			merged[name] = existing[name]
		}
	}
	return merged
}

// parsePayload decodes the JSON payload of a transaction. An empty payload
// is an empty object.
func parsePayload(payload string) (map[string]interface{}, bool) {
	if strings.TrimSpace(payload) == "" {
		return map[string]interface{}{}, true
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	switch m := docdb.Normalize(v).(type) {
	case map[string]interface{}:
		return m, true
	case nil:
		return map[string]interface{}{}, true
	}
	return nil, false
}

// normalizeParams brings decoded deployment params into host form.
func normalizeParams(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return docdb.Normalize(out)
}

// Timestamp layouts accepted from the block producer. Upstream timestamps
// carry no zone and are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseTimestamp(ts string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}
