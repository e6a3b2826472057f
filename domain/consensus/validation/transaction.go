package validation

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/pkg/errors"
)

const (
	// MinCoinbaseScriptLen is the minimum length a coinbase script can be.
	MinCoinbaseScriptLen = 2

	// MaxCoinbaseScriptLen is the maximum length a coinbase script can be.
	MaxCoinbaseScriptLen = 100

	// MaxScriptSize is the maximum size of any script.
	MaxScriptSize = 10000

	// MaxTransactionSize is the maximum serialized size of a transaction.
	MaxTransactionSize = 1_000_000
)

// CheckTransactionSanity performs the checks of tx that do not depend on
// any chain state.
func CheckTransactionSanity(tx *model.Transaction) error {
	if len(tx.Inputs) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTxInputs, "transaction has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTxOutputs, "transaction has no outputs")
	}
	if size := consensushashing.SerializeSize(tx); size > MaxTransactionSize {
		return errors.Wrapf(ruleerrors.ErrScriptMalformed, "serialized transaction is "+
			"too big - got %d, max %d", size, MaxTransactionSize)
	}

	err := checkTransactionAmountRanges(tx)
	if err != nil {
		return err
	}

	existingOutpoints := make(map[model.Outpoint]struct{}, len(tx.Inputs))
	for _, input := range tx.Inputs {
		if _, exists := existingOutpoints[input.PreviousOutpoint]; exists {
			return errors.Wrapf(ruleerrors.ErrDuplicateTxInputs, "transaction "+
				"contains duplicate inputs")
		}
		existingOutpoints[input.PreviousOutpoint] = struct{}{}
		if len(input.SignatureScript) > MaxScriptSize {
			return errors.Wrapf(ruleerrors.ErrScriptMalformed, "signature script of %d "+
				"bytes is too long", len(input.SignatureScript))
		}
	}

	if tx.IsCoinbase() {
		scriptLen := len(tx.Inputs[0].SignatureScript)
		if scriptLen < MinCoinbaseScriptLen || scriptLen > MaxCoinbaseScriptLen {
			return errors.Wrapf(ruleerrors.ErrBadCoinbaseScriptLen, "coinbase transaction "+
				"script length of %d is out of range (min: %d, max: %d)",
				scriptLen, MinCoinbaseScriptLen, MaxCoinbaseScriptLen)
		}
		return nil
	}

	// Previous transaction outputs referenced by the inputs of a regular
	// transaction must not be null.
	for _, input := range tx.Inputs {
		if input.PreviousOutpoint.IsNull() {
			return errors.Wrapf(ruleerrors.ErrBadTxInput, "transaction input refers to "+
				"previous output that is null")
		}
	}
	return nil
}

func checkTransactionAmountRanges(tx *model.Transaction) error {
	var totalSatoshi int64
	for _, output := range tx.Outputs {
		if output.Value < 0 {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "transaction output has "+
				"negative value of %d", output.Value)
		}
		if output.Value > btcutil.MaxSatoshi {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "transaction output value of "+
				"%d is higher than max allowed value of %d", output.Value, int64(btcutil.MaxSatoshi))
		}
		if len(output.ScriptPubKey) > MaxScriptSize {
			return errors.Wrapf(ruleerrors.ErrScriptMalformed, "output script of %d "+
				"bytes is too long", len(output.ScriptPubKey))
		}

		// Two outputs in range may still overflow the accumulator.
		totalSatoshi += output.Value
		if totalSatoshi < 0 || totalSatoshi > btcutil.MaxSatoshi {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all "+
				"transaction outputs exceeds max allowed value of %d", int64(btcutil.MaxSatoshi))
		}
	}
	return nil
}

// CalculateFee returns the fee tx pays when spending spents, which must
// follow the order of its inputs.
func CalculateFee(tx *model.Transaction, spents []*model.Spendable) (int64, error) {
	var totalIn int64
	for _, spent := range spents {
		totalIn += spent.Value
		if spent.Value < 0 || totalIn < 0 || totalIn > btcutil.MaxSatoshi {
			return 0, errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all "+
				"transaction inputs exceeds max allowed value of %d", int64(btcutil.MaxSatoshi))
		}
	}

	totalOut := tx.OutputsValue()
	if totalIn < totalOut {
		return 0, errors.Wrapf(ruleerrors.ErrSpendTooHigh, "total value of all transaction "+
			"inputs for the transaction is %s which is less than the amount spent of %s",
			btcutil.Amount(totalIn), btcutil.Amount(totalOut))
	}
	return totalIn - totalOut, nil
}

// MinimumFee returns the smallest fee a transaction of the given
// serialized size must pay at feePerKB.
func MinimumFee(serializedSize int, feePerKB int64) int64 {
	fee := int64(serializedSize) * feePerKB / 1000
	if fee == 0 && feePerKB > 0 {
		fee = feePerKB
	}
	if fee < 0 || fee > btcutil.MaxSatoshi {
		fee = btcutil.MaxSatoshi
	}
	return fee
}

// IsFinalizedTransaction determines whether or not a transaction is
// finalized in a block at the given height and time.
func IsFinalizedTransaction(tx *model.Transaction, blockHeight uint64, blockTime int64) bool {
	// Lock time of zero means the transaction is finalized.
	lockTime := tx.LockTime
	if lockTime == 0 {
		return true
	}

	// The lock time field of a transaction is either a block height at
	// which the transaction is finalized or a timestamp depending on if the
	// value is before model.LockTimeThreshold.
	var blockTimeOrHeight int64
	if lockTime < model.LockTimeThreshold {
		blockTimeOrHeight = int64(blockHeight)
	} else {
		blockTimeOrHeight = blockTime
	}
	if int64(lockTime) < blockTimeOrHeight {
		return true
	}

	// At this point, the transaction's lock time hasn't occurred yet, but
	// the transaction might still be finalized if the sequence number
	// for all transaction inputs is maxed out.
	for _, input := range tx.Inputs {
		if input.Sequence != model.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}
