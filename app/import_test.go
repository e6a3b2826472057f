package app

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coinchain/coinchaind/domain/chaincfg"
	"github.com/coinchain/coinchaind/domain/consensus/blockchain"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/mining"
	"github.com/coinchain/coinchaind/infrastructure/db/database/ldb"
	"github.com/davecgh/go-spew/spew"
)

var payeeScript = []byte{0x51}

func newTestChain(t *testing.T, params *chaincfg.Params, now func() time.Time) *blockchain.BlockChain {
	db, err := ldb.NewLevelDB(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("NewLevelDB: %s", err)
	}
	chain, err := blockchain.New(&blockchain.Config{
		Params:          params,
		DatabaseContext: chainstore.New(db),
		TimeSource:      now,
	})
	if err != nil {
		t.Fatalf("blockchain.New: %s", err)
	}
	t.Cleanup(func() {
		chain.Close()
		db.Close()
	})
	return chain
}

// mineBlocks mines count blocks on a fresh regtest chain and returns them
// in order.
func mineBlocks(t *testing.T, count int) []*model.Block {
	params := chaincfg.RegressionNetParams.Copy()
	clock := params.GenesisBlock.Header.Timestamp
	chain := newTestChain(t, params, func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})

	rd := rand.New(rand.NewSource(0))
	blocks := make([]*model.Block, count)
	for i := range blocks {
		template, err := chain.GetBlockTemplate([][]byte{payeeScript}, nil, nil)
		if err != nil {
			t.Fatalf("GetBlockTemplate: %s", err)
		}
		err = mining.SolveBlock(template.Block, rd)
		if err != nil {
			t.Fatalf("SolveBlock: %s", err)
		}
		_, err = chain.Append(template.Block)
		if err != nil {
			t.Fatalf("Append: %s", err)
		}
		blocks[i] = template.Block
	}
	return blocks
}

func writeBlockFile(t *testing.T, blocks []*model.Block) string {
	var buf bytes.Buffer
	for _, block := range blocks {
		serialized := consensushashing.BlockToBytes(block)
		err := binary.Write(&buf, binary.LittleEndian, uint32(len(serialized)))
		if err != nil {
			t.Fatalf("binary.Write: %s", err)
		}
		buf.Write(serialized)
	}
	path := filepath.Join(t.TempDir(), "blocks.dat")
	err := os.WriteFile(path, buf.Bytes(), 0600)
	if err != nil {
		t.Fatalf("WriteFile: %s", err)
	}
	return path
}

func TestImportBlockFile(t *testing.T) {
	blocks := mineBlocks(t, 5)

	// Out of order blocks are pooled as orphans until their parent arrives.
	ordered := []*model.Block{blocks[0], blocks[2], blocks[1], blocks[3], blocks[4]}
	path := writeBlockFile(t, ordered)

	chain := newTestChain(t, chaincfg.RegressionNetParams.Copy(), nil)
	results, err := importBlockFile(chain, path, make(chan struct{}))
	if err != nil {
		t.Fatalf("TestImportBlockFile: importBlockFile: %+v", err)
	}

	expected := importResults{blocksProcessed: 5, blocksImported: 4, blocksOrphaned: 1}
	if *results != expected {
		t.Fatalf("TestImportBlockFile: unexpected results %s", spew.Sdump(results))
	}
	if chain.BestHeight() != 5 {
		t.Fatalf("TestImportBlockFile: expected height 5, got %d", chain.BestHeight())
	}
	if *chain.Best().Hash() != *consensushashing.BlockHash(blocks[4]) {
		t.Fatalf("TestImportBlockFile: unexpected best block %s", chain.Best().Hash())
	}
}

func TestImportSkipsRejectedBlocks(t *testing.T) {
	blocks := mineBlocks(t, 2)

	invalid := *blocks[1]
	invalid.Header.Bits = 0
	path := writeBlockFile(t, []*model.Block{blocks[0], &invalid, blocks[1]})

	chain := newTestChain(t, chaincfg.RegressionNetParams.Copy(), nil)
	results, err := importBlockFile(chain, path, make(chan struct{}))
	if err != nil {
		t.Fatalf("TestImportSkipsRejectedBlocks: importBlockFile: %+v", err)
	}
	if results.blocksRejected != 1 || results.blocksImported != 2 {
		t.Fatalf("TestImportSkipsRejectedBlocks: unexpected results %s", spew.Sdump(results))
	}
	if chain.BestHeight() != 2 {
		t.Fatalf("TestImportSkipsRejectedBlocks: expected height 2, got %d", chain.BestHeight())
	}
}

func TestImportMalformedFile(t *testing.T) {
	blocks := mineBlocks(t, 1)
	serialized := consensushashing.BlockToBytes(blocks[0])

	tests := []struct {
		name     string
		contents func() []byte
	}{
		{
			name: "truncated block",
			contents: func() []byte {
				var buf bytes.Buffer
				binary.Write(&buf, binary.LittleEndian, uint32(len(serialized)))
				buf.Write(serialized[:len(serialized)/2])
				return buf.Bytes()
			},
		},
		{
			name: "truncated length",
			contents: func() []byte {
				return []byte{0x01, 0x02}
			},
		},
		{
			name: "oversized length",
			contents: func() []byte {
				var buf bytes.Buffer
				binary.Write(&buf, binary.LittleEndian, uint32(maxImportBlockSize+1))
				return buf.Bytes()
			},
		},
		{
			name: "garbage block",
			contents: func() []byte {
				var buf bytes.Buffer
				binary.Write(&buf, binary.LittleEndian, uint32(3))
				buf.Write([]byte{0xff, 0xff, 0xff})
				return buf.Bytes()
			},
		},
	}

	for _, test := range tests {
		chain := newTestChain(t, chaincfg.RegressionNetParams.Copy(), nil)
		importer := newBlockImporter(chain, bytes.NewReader(test.contents()), make(chan struct{}))
		_, err := importer.importAll()
		if err == nil {
			t.Errorf("TestImportMalformedFile: %s: expected an error", test.name)
		}
		if chain.BestHeight() != 0 {
			t.Errorf("TestImportMalformedFile: %s: expected height 0, got %d", test.name, chain.BestHeight())
		}
	}
}

func TestImportInterrupted(t *testing.T) {
	blocks := mineBlocks(t, 3)
	path := writeBlockFile(t, blocks)

	interrupt := make(chan struct{})
	close(interrupt)

	chain := newTestChain(t, chaincfg.RegressionNetParams.Copy(), nil)
	results, err := importBlockFile(chain, path, interrupt)
	if err != nil {
		t.Fatalf("TestImportInterrupted: importBlockFile: %+v", err)
	}
	if results.blocksProcessed != 0 || chain.BestHeight() != 0 {
		t.Fatalf("TestImportInterrupted: expected nothing to be imported, got %s", spew.Sdump(results))
	}
}

func TestImportProgressLogging(t *testing.T) {
	blocks := mineBlocks(t, 3)
	path := writeBlockFile(t, blocks)
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("TestImportProgressLogging: Open: %s", err)
	}
	defer file.Close()

	chain := newTestChain(t, chaincfg.RegressionNetParams.Copy(), nil)
	importer := newBlockImporter(chain, file, make(chan struct{}))
	start := importer.lastLogTime
	clock := start
	importer.now = func() time.Time {
		clock = clock.Add(importProgressInterval / 2)
		return clock
	}

	_, err = importer.importAll()
	if err != nil {
		t.Fatalf("TestImportProgressLogging: importAll: %+v", err)
	}

	// The second block crossed the interval and reset the counters. The
	// third one is still pending.
	if importer.receivedLogBlocks != 1 {
		t.Fatalf("TestImportProgressLogging: expected 1 pending block, got %d", importer.receivedLogBlocks)
	}
	if !importer.lastLogTime.Equal(start.Add(importProgressInterval)) {
		t.Fatalf("TestImportProgressLogging: unexpected last log time %s", importer.lastLogTime)
	}
}
