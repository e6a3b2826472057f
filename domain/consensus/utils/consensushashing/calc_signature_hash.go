package consensushashing

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/pkg/errors"
)

// SigHashType represents hash type bits at the end of a signature.
type SigHashType uint32

// SigHashAll signs every input and output. It is the only hash type
// supported.
const SigHashAll SigHashType = 0x1

// CalcSignatureHash computes the hash signed by input idx of tx, which
// spends an output locked by prevScriptPubKey: every signature script is
// emptied except the one of idx, which is replaced by prevScriptPubKey, and
// the hash type is appended to the serialization.
func CalcSignatureHash(tx *model.Transaction, idx int, prevScriptPubKey []byte,
	hashType SigHashType) (*chainhash.Hash, error) {

	if hashType != SigHashAll {
		return nil, errors.Errorf("unsupported signature hash type 0x%x", uint32(hashType))
	}
	if idx < 0 || idx >= len(tx.Inputs) {
		return nil, errors.Errorf("input index %d out of range for a transaction "+
			"with %d inputs", idx, len(tx.Inputs))
	}

	txCopy := *tx
	txCopy.Inputs = make([]*model.TxIn, len(tx.Inputs))
	for i, input := range tx.Inputs {
		inputCopy := *input
		if i == idx {
			inputCopy.SignatureScript = prevScriptPubKey
		} else {
			inputCopy.SignatureScript = nil
		}
		txCopy.Inputs[i] = &inputCopy
	}

	buf := bytes.NewBuffer(make([]byte, 0, SerializeSize(&txCopy)+4))
	err := writeSignatureHashPreimage(buf, &txCopy, hashType)
	if err != nil {
		return nil, err
	}
	hash := chainhash.DoubleHashH(buf.Bytes())
	return &hash, nil
}

// writeSignatureHashPreimage writes the serialization of txCopy followed by
// hashType.
func writeSignatureHashPreimage(w io.Writer, txCopy *model.Transaction, hashType SigHashType) error {
	err := SerializeTransaction(w, txCopy)
	if err != nil {
		return errors.Wrap(err, "failed to serialize the signature hash transaction")
	}
	err = writeUint32(w, uint32(hashType))
	if err != nil {
		return errors.Wrap(err, "failed to write the signature hash type")
	}
	return nil
}
