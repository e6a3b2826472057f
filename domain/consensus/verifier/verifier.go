package verifier

import (
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Verifier checks that a transaction input is allowed to spend the output
// it references.
type Verifier interface {
	VerifyInput(tx *model.Transaction, inputIndex int, spent *model.Spendable) error
}

// VerifyTransaction verifies every input of tx against the output it
// spends, in parallel. spents must follow the order of the inputs. Any
// failure is returned as an ErrScriptValidation.
func VerifyTransaction(v Verifier, tx *model.Transaction, spents []*model.Spendable) error {
	if len(spents) != len(tx.Inputs) {
		return errors.Errorf("got %d spent outputs for a transaction with %d inputs",
			len(spents), len(tx.Inputs))
	}

	group, _ := errgroup.WithContext(context.Background())
	for i := range tx.Inputs {
		inputIndex := i
		group.Go(func() error {
			err := v.VerifyInput(tx, inputIndex, spents[inputIndex])
			if err != nil && !errors.Is(err, ruleerrors.ErrScriptValidation) {
				return errors.Wrapf(ruleerrors.ErrScriptValidation, "input %d of %s: %s",
					inputIndex, consensushashing.TransactionHash(tx), err)
			}
			return err
		})
	}
	err := group.Wait()
	if err != nil {
		log.Tracef("Verification failed: %s", err)
	}
	return err
}

const (
	pubKeyLength = secp256k1.PubKeyBytesLenCompressed

	// payToPubKeyLength is the length of a pay-to-pubkey script:
	// <push 33> <pubkey> OP_CHECKSIG.
	payToPubKeyLength = 1 + pubKeyLength + 1
)

// SignatureVerifier verifies pay-to-pubkey outputs. Inputs spending them
// must push a single DER signature followed by the hash type.
type SignatureVerifier struct{}

// NewSignatureVerifier returns a SignatureVerifier.
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// PayToPubKeyScript returns the script paying to the compressed public key
// pubKey.
func PayToPubKeyScript(pubKey *secp256k1.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(pubKey.SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func extractPubKey(script []byte) ([]byte, bool) {
	if len(script) != payToPubKeyLength ||
		script[0] != txscript.OP_DATA_33 ||
		script[payToPubKeyLength-1] != txscript.OP_CHECKSIG {
		return nil, false
	}
	return script[1 : 1+pubKeyLength], true
}

// VerifyInput implements Verifier.
func (*SignatureVerifier) VerifyInput(tx *model.Transaction, inputIndex int, spent *model.Spendable) error {
	pubKeyBytes, ok := extractPubKey(spent.ScriptPubKey)
	if !ok {
		return errors.Wrapf(ruleerrors.ErrScriptMalformed, "output %s is not pay-to-pubkey", spent.Outpoint)
	}
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrScriptMalformed, "output %s: %s", spent.Outpoint, err)
	}

	signatureScript := tx.Inputs[inputIndex].SignatureScript
	if len(signatureScript) < 2 || int(signatureScript[0]) != len(signatureScript)-1 ||
		signatureScript[0] > txscript.OP_DATA_75 {
		return errors.Wrapf(ruleerrors.ErrScriptMalformed, "signature script of input %d "+
			"is not a single signature push", inputIndex)
	}
	pushed := signatureScript[1:]
	hashType := consensushashing.SigHashType(pushed[len(pushed)-1])
	signature, err := ecdsa.ParseDERSignature(pushed[:len(pushed)-1])
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrScriptMalformed, "input %d: %s", inputIndex, err)
	}

	sigHash, err := consensushashing.CalcSignatureHash(tx, inputIndex, spent.ScriptPubKey, hashType)
	if err != nil {
		return errors.Wrapf(ruleerrors.ErrScriptValidation, "input %d: %s", inputIndex, err)
	}
	if !signature.Verify(sigHash[:], pubKey) {
		return errors.Wrapf(ruleerrors.ErrScriptValidation, "signature of input %d does not "+
			"match output %s", inputIndex, spent.Outpoint)
	}
	return nil
}

// SignInput sets the signature script of input inputIndex of tx so that
// it spends the pay-to-pubkey output prevScriptPubKey of privateKey.
func SignInput(tx *model.Transaction, inputIndex int, prevScriptPubKey []byte,
	privateKey *secp256k1.PrivateKey) error {

	sigHash, err := consensushashing.CalcSignatureHash(tx, inputIndex, prevScriptPubKey, consensushashing.SigHashAll)
	if err != nil {
		return err
	}
	signature := ecdsa.Sign(privateKey, sigHash[:]).Serialize()
	signature = append(signature, byte(consensushashing.SigHashAll))
	tx.Inputs[inputIndex].SignatureScript, err = txscript.NewScriptBuilder().AddData(signature).Script()
	return err
}

// AcceptAll is a Verifier that accepts every input.
type AcceptAll struct{}

// VerifyInput implements Verifier.
func (AcceptAll) VerifyInput(*model.Transaction, int, *model.Spendable) error {
	return nil
}
