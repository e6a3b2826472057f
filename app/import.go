package app

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/coinchain/coinchaind/domain/consensus/blockchain"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/infrastructure/os/signal"
	"github.com/pkg/errors"
)

const (
	// maxImportBlockSize bounds the length prefix of a block in an import
	// file so a corrupt prefix can't trigger a huge allocation.
	maxImportBlockSize = 32 * 1024 * 1024

	importProgressInterval = 10 * time.Second
)

// importResults summarizes a block file import.
type importResults struct {
	blocksProcessed int64
	blocksImported  int64
	blocksOrphaned  int64
	blocksRejected  int64
}

// blockImporter appends the blocks of a block file to the chain.
type blockImporter struct {
	chain     *blockchain.BlockChain
	reader    *bufio.Reader
	interrupt <-chan struct{}

	results importResults

	receivedLogBlocks int64
	receivedLogTx     int64
	lastLogTime       time.Time
	now               func() time.Time
}

func newBlockImporter(chain *blockchain.BlockChain, r io.Reader, interrupt <-chan struct{}) *blockImporter {
	return &blockImporter{
		chain:       chain,
		reader:      bufio.NewReader(r),
		interrupt:   interrupt,
		lastLogTime: time.Now(),
		now:         time.Now,
	}
}

// importBlockFile appends every block of the file at path to chain.
func importBlockFile(chain *blockchain.BlockChain, path string, interrupt <-chan struct{}) (*importResults, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open import file %s", path)
	}
	defer file.Close()

	log.Infof("Importing blocks from %s", path)
	importer := newBlockImporter(chain, file, interrupt)
	results, err := importer.importAll()
	if err != nil {
		return results, err
	}
	log.Infof("Processed a total of %d blocks (%d imported, %d orphaned, %d rejected)",
		results.blocksProcessed, results.blocksImported, results.blocksOrphaned, results.blocksRejected)
	return results, nil
}

// readBlock reads the next length-prefixed block. It returns nil bytes
// when the end of the file is reached between two blocks.
func (bi *blockImporter) readBlock() ([]byte, error) {
	var blockLength uint32
	err := binary.Read(bi.reader, binary.LittleEndian, &blockLength)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read block length")
	}
	if blockLength > maxImportBlockSize {
		return nil, errors.Errorf("block length of %d bytes is larger than the max allowed %d",
			blockLength, maxImportBlockSize)
	}

	serializedBlock := make([]byte, blockLength)
	_, err = io.ReadFull(bi.reader, serializedBlock)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read block")
	}
	return serializedBlock, nil
}

// importAll appends blocks until the file ends, an internal error occurs
// or an interrupt is requested. Rejected blocks are logged and skipped.
func (bi *blockImporter) importAll() (*importResults, error) {
	for {
		if signal.InterruptRequested(bi.interrupt) {
			log.Infof("Import interrupted after %d blocks", bi.results.blocksProcessed)
			return &bi.results, nil
		}

		serializedBlock, err := bi.readBlock()
		if err != nil {
			return &bi.results, err
		}
		if serializedBlock == nil {
			return &bi.results, nil
		}
		bi.results.blocksProcessed++

		err = bi.processBlock(serializedBlock)
		if err != nil {
			return &bi.results, err
		}
	}
}

func (bi *blockImporter) processBlock(serializedBlock []byte) error {
	block, err := consensushashing.BlockFromBytes(serializedBlock)
	if err != nil {
		return errors.Wrapf(err, "failed to deserialize block %d", bi.results.blocksProcessed)
	}

	result, err := bi.chain.Append(block)
	switch result.Outcome {
	case ruleerrors.OutcomeAccepted:
		bi.results.blocksImported++
	case ruleerrors.OutcomeOrphan:
		bi.results.blocksOrphaned++
	case ruleerrors.OutcomeRejected:
		bi.results.blocksRejected++
		log.Warnf("Rejected block %s from the import file: %s", result.Hash, err)
		return nil
	default:
		return errors.Wrapf(err, "failed to append block %s", result.Hash)
	}

	bi.logProgress(len(block.Transactions))
	return nil
}

// logProgress logs block progress as an information message. In order to
// prevent spam, it limits logging to one message every importProgressInterval
// with duration and totals included.
func (bi *blockImporter) logProgress(txCount int) {
	bi.receivedLogBlocks++
	bi.receivedLogTx += int64(txCount)

	now := bi.now()
	duration := now.Sub(bi.lastLogTime)
	if duration < importProgressInterval {
		return
	}

	// Truncate the duration to 10s of milliseconds.
	tDuration := duration.Truncate(10 * time.Millisecond)

	blockStr := "blocks"
	if bi.receivedLogBlocks == 1 {
		blockStr = "block"
	}
	txStr := "transactions"
	if bi.receivedLogTx == 1 {
		txStr = "transaction"
	}
	log.Infof("Processed %d %s in the last %s (%d %s, height %d)",
		bi.receivedLogBlocks, blockStr, tDuration, bi.receivedLogTx,
		txStr, bi.chain.BestHeight())

	bi.receivedLogBlocks = 0
	bi.receivedLogTx = 0
	bi.lastLogTime = now
}
