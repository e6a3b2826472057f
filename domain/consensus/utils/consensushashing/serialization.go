package consensushashing

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/coinchain/coinchaind/domain/consensus/model"
)

// protocolVersion is passed to the btcd varint helpers, which ignore it.
const protocolVersion = 0

// BlockHeaderSize is the size of a serialized block header.
const BlockHeaderSize = 80

func writeUint32(w io.Writer, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	_, err := w.Write(buf[:])
	return err
}

// SerializeHeader writes the 80 byte consensus encoding of header to w.
func SerializeHeader(w io.Writer, header *model.BlockHeader) error {
	if err := writeUint32(w, uint32(header.Version)); err != nil {
		return err
	}
	if _, err := w.Write(header.ParentHash[:]); err != nil {
		return err
	}
	if _, err := w.Write(header.MerkleRoot[:]); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(header.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeUint32(w, header.Bits); err != nil {
		return err
	}
	return writeUint32(w, header.Nonce)
}

// SerializeTransaction writes the consensus encoding of tx to w.
func SerializeTransaction(w io.Writer, tx *model.Transaction) error {
	if err := writeUint32(w, uint32(tx.Version)); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, protocolVersion, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		if _, err := w.Write(input.PreviousOutpoint.TxHash[:]); err != nil {
			return err
		}
		if err := writeUint32(w, input.PreviousOutpoint.Index); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, protocolVersion, input.SignatureScript); err != nil {
			return err
		}
		if err := writeUint32(w, input.Sequence); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, protocolVersion, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for _, output := range tx.Outputs {
		if err := writeUint64(w, uint64(output.Value)); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, protocolVersion, output.ScriptPubKey); err != nil {
			return err
		}
	}

	return writeUint32(w, tx.LockTime)
}

// SerializeSize returns the number of bytes of the consensus encoding of tx.
func SerializeSize(tx *model.Transaction) int {
	// Version and lock time.
	size := 8
	size += wire.VarIntSerializeSize(uint64(len(tx.Inputs)))
	for _, input := range tx.Inputs {
		// Outpoint and sequence.
		size += 32 + 4 + 4
		size += wire.VarIntSerializeSize(uint64(len(input.SignatureScript))) + len(input.SignatureScript)
	}
	size += wire.VarIntSerializeSize(uint64(len(tx.Outputs)))
	for _, output := range tx.Outputs {
		size += 8
		size += wire.VarIntSerializeSize(uint64(len(output.ScriptPubKey))) + len(output.ScriptPubKey)
	}
	return size
}

func serializeTransactionToBytes(tx *model.Transaction) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, SerializeSize(tx)))
	// Writes to a bytes.Buffer never fail.
	_ = SerializeTransaction(buf, tx)
	return buf.Bytes()
}
