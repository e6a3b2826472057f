package consensushashing

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/pkg/errors"
)

// maxScriptSize bounds the length of a single script read from the wire.
const maxScriptSize = 10_000

// maxTransactionsPerBlock bounds the number of transactions read from a
// serialized block. Every transaction takes at least 60 bytes.
const maxTransactionsPerBlock = 4_000_000 / 60

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.WithStack(err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// DeserializeHeader reads an 80 byte header from r.
func DeserializeHeader(r io.Reader) (*model.BlockHeader, error) {
	header := &model.BlockHeader{}
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	header.Version = int32(version)
	if _, err := io.ReadFull(r, header.ParentHash[:]); err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := io.ReadFull(r, header.MerkleRoot[:]); err != nil {
		return nil, errors.WithStack(err)
	}
	timestamp, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	header.Timestamp = time.Unix(int64(timestamp), 0)
	if header.Bits, err = readUint32(r); err != nil {
		return nil, err
	}
	if header.Nonce, err = readUint32(r); err != nil {
		return nil, err
	}
	return header, nil
}

// DeserializeTransaction reads a transaction in consensus encoding from r.
func DeserializeTransaction(r io.Reader) (*model.Transaction, error) {
	tx := &model.Transaction{}
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	tx.Version = int32(version)

	inputCount, err := wire.ReadVarInt(r, protocolVersion)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if inputCount > maxTransactionsPerBlock {
		return nil, errors.Errorf("too many inputs to fit into a block: %d", inputCount)
	}
	tx.Inputs = make([]*model.TxIn, inputCount)
	for i := range tx.Inputs {
		input := &model.TxIn{}
		if _, err := io.ReadFull(r, input.PreviousOutpoint.TxHash[:]); err != nil {
			return nil, errors.WithStack(err)
		}
		if input.PreviousOutpoint.Index, err = readUint32(r); err != nil {
			return nil, err
		}
		input.SignatureScript, err = wire.ReadVarBytes(r, protocolVersion, maxScriptSize, "signature script")
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if input.Sequence, err = readUint32(r); err != nil {
			return nil, err
		}
		tx.Inputs[i] = input
	}

	outputCount, err := wire.ReadVarInt(r, protocolVersion)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if outputCount > maxTransactionsPerBlock {
		return nil, errors.Errorf("too many outputs to fit into a block: %d", outputCount)
	}
	tx.Outputs = make([]*model.TxOut, outputCount)
	for i := range tx.Outputs {
		value, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		script, err := wire.ReadVarBytes(r, protocolVersion, maxScriptSize, "script public key")
		if err != nil {
			return nil, errors.WithStack(err)
		}
		tx.Outputs[i] = &model.TxOut{Value: int64(value), ScriptPubKey: script}
	}

	if tx.LockTime, err = readUint32(r); err != nil {
		return nil, err
	}
	return tx, nil
}

// SerializeBlock writes the header of block followed by its transactions
// to w.
func SerializeBlock(w io.Writer, block *model.Block) error {
	if err := SerializeHeader(w, &block.Header); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, protocolVersion, uint64(len(block.Transactions))); err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		if err := SerializeTransaction(w, tx); err != nil {
			return err
		}
	}
	return nil
}

// BlockToBytes returns the consensus encoding of block.
func BlockToBytes(block *model.Block) []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer never fail.
	_ = SerializeBlock(&buf, block)
	return buf.Bytes()
}

// DeserializeBlock reads a block in consensus encoding from r.
func DeserializeBlock(r io.Reader) (*model.Block, error) {
	header, err := DeserializeHeader(r)
	if err != nil {
		return nil, err
	}
	txCount, err := wire.ReadVarInt(r, protocolVersion)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if txCount > maxTransactionsPerBlock {
		return nil, errors.Errorf("too many transactions to fit into a block: %d", txCount)
	}
	block := &model.Block{Header: *header, Transactions: make([]*model.Transaction, txCount)}
	for i := range block.Transactions {
		block.Transactions[i], err = DeserializeTransaction(r)
		if err != nil {
			return nil, err
		}
	}
	return block, nil
}

// BlockFromBytes decodes a block and ensures no trailing bytes follow it.
func BlockFromBytes(serialized []byte) (*model.Block, error) {
	reader := bytes.NewReader(serialized)
	block, err := DeserializeBlock(reader)
	if err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.Errorf("%d trailing bytes after block", reader.Len())
	}
	return block, nil
}
