package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	log "github.com/inconshreveable/log15"
	"github.com/tos-network/ssc/cmd/utils"
	"github.com/tos-network/ssc/core"
	"github.com/tos-network/ssc/core/types"
	"github.com/tos-network/ssc/docdb"
	"github.com/tos-network/ssc/docdb/leveldb"
	"github.com/urfave/cli/v2"
)

var replayCommand = &cli.Command{
	Action:    replay,
	Name:      "replay",
	Usage:     "Execute a file of blocks against the contract database",
	ArgsUsage: "<blocks.json>",
	Flags:     append(append([]cli.Flag{}, utils.DatabaseFlags...), utils.EngineFlags...),
	Description: `
The replay command executes every transaction of the given JSON file of blocks
in order. Each block is applied atomically: a host fault discards the block
and stops the replay. Per-transaction results are printed as they happen.`,
}

// receipt is a transaction as recorded in the block store.
type receipt struct {
	*types.Transaction
	ExecutedCodeHash string     `json:"executedCodeHash,omitempty"`
	Logs             types.Logs `json:"logs"`
}

type replayStats struct {
	blocks, txs, failed int
}

func replay(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		utils.Fatalf("This command requires an argument.")
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	blocks, err := readBlocks(ctx.Args().First())
	if err != nil {
		return err
	}
	db := utils.MakeDatabase(cfg.Database.DataDir, cfg.Database.Cache, cfg.Database.Handles, false)
	defer db.Close()

	start := time.Now()
	stats, err := replayBlocks(db, cfg.Engine, blocks, os.Stdout)
	if err != nil {
		return err
	}
	log.Info("Replay done", "blocks", stats.blocks, "txs", stats.txs, "failed", stats.failed, "elapsed", time.Since(start))
	return nil
}

func readBlocks(file string) ([]*types.Block, error) {
	blob, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var blocks []*types.Block
	if err := json.Unmarshal(blob, &blocks); err != nil {
		return nil, fmt.Errorf("%s: %v", file, err)
	}
	return blocks, nil
}

// replayBlocks applies blocks in order, one store transaction per block.
// The block record is written in the same transaction as its effects.
func replayBlocks(db *leveldb.Database, config core.Config, blocks []*types.Block, out io.Writer) (replayStats, error) {
	var stats replayStats
	for _, blk := range blocks {
		receipts, err := applyBlock(db, config, blk, out)
		if err != nil {
			return stats, fmt.Errorf("block %d: %w", blk.BlockNumber, err)
		}
		stats.blocks++
		for _, r := range receipts {
			stats.txs++
			if r.Logs.Failed() {
				stats.failed++
			}
		}
	}
	return stats, nil
}

func applyBlock(db *leveldb.Database, config core.Config, blk *types.Block, out io.Writer) ([]*receipt, error) {
	batch, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer batch.Discard()

	engine, err := core.New(config, batch)
	if err != nil {
		return nil, err
	}
	var (
		ok       = color.New(color.FgGreen)
		failed   = color.New(color.FgRed)
		receipts = make([]*receipt, 0, len(blk.Transactions))
	)
	for _, tx := range blk.Transactions {
		res, err := engine.Apply(tx, &blk.BlockContext)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, &receipt{Transaction: tx, ExecutedCodeHash: res.ExecutedCodeHash, Logs: res.Logs})
		if res.Logs.Failed() {
			failed.Fprintf(out, "%-10s #%d %s %s.%s: %s\n", "failed", blk.BlockNumber, tx.TransactionID, tx.Contract, tx.Action, strings.Join(res.Logs.Errors, "; "))
			continue
		}
		ok.Fprintf(out, "%-10s #%d %s %s.%s events=%d hash=%s\n", "ok", blk.BlockNumber, tx.TransactionID, tx.Contract, tx.Action, len(res.Logs.Events), res.ExecutedCodeHash)
	}
	info, err := blockDocument(blk, receipts)
	if err != nil {
		return nil, err
	}
	if err := batch.PutBlockInfo(blk.BlockNumber, info); err != nil {
		return nil, err
	}
	return receipts, batch.Commit()
}

// blockDocument is the record contracts read back through getBlockInfo.
func blockDocument(blk *types.Block, receipts []*receipt) (docdb.Document, error) {
	blob, err := json.Marshal(struct {
		types.BlockContext
		Transactions []*receipt `json:"transactions"`
	}{blk.BlockContext, receipts})
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	docdb.Normalize(doc)
	return doc, nil
}
