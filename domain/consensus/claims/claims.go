package claims

import (
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/validation"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/pkg/errors"
)

// Claim is an unconfirmed transaction that reserves the outputs it spends
// until it is confirmed or evicted.
type Claim struct {
	Tx        *model.Transaction
	TxHash    chainhash.Hash
	Outpoints []model.Outpoint
	Spents    []*model.Spendable
	Fee       int64
	Size      int
	ClaimedAt time.Time
}

// FeePerKB returns the fee of the claim per 1000 bytes of its serialized
// size.
func (c *Claim) FeePerKB() int64 {
	if c.Size == 0 {
		return 0
	}
	return c.Fee * 1000 / int64(c.Size)
}

// SpendableView resolves the confirmed outputs claims may spend.
type SpendableView interface {
	Get(outpoint model.Outpoint) (*model.Spendable, error)
}

// Claims holds the live claims. The outpoints of different claims never
// overlap. Claims is not safe for concurrent use.
type Claims struct {
	byHash        map[chainhash.Hash]*Claim
	byOutpoint    map[model.Outpoint]*Claim
	minRelayTxFee int64
	now           func() time.Time
}

// New returns an empty Claims that requires claimed transactions to pay at
// least minRelayTxFee per 1000 bytes.
func New(minRelayTxFee int64) *Claims {
	return &Claims{
		byHash:        make(map[chainhash.Hash]*Claim),
		byOutpoint:    make(map[model.Outpoint]*Claim),
		minRelayTxFee: minRelayTxFee,
		now:           time.Now,
	}
}

// SetTimeSource replaces the clock that timestamps new claims.
func (c *Claims) SetTimeSource(now func() time.Time) {
	c.now = now
}

// MinRelayTxFee returns the minimum fee per 1000 bytes claims must pay.
func (c *Claims) MinRelayTxFee() int64 {
	return c.minRelayTxFee
}

// TryClaim checks whether tx could be claimed against view without
// claiming it. It returns the outpoints tx spends and the fee it pays. A
// nil verifier skips input verification.
func (c *Claims) TryClaim(tx *model.Transaction, view SpendableView, v verifier.Verifier) (
	[]model.Outpoint, int64, error) {

	claim, err := c.check(tx, view, v)
	if err != nil {
		return nil, 0, err
	}
	return claim.Outpoints, claim.Fee, nil
}

func (c *Claims) check(tx *model.Transaction, view SpendableView, v verifier.Verifier) (*Claim, error) {
	txHash := consensushashing.TransactionHash(tx)
	if tx.IsCoinbase() {
		return nil, errors.Wrapf(ruleerrors.ErrCoinbaseClaim, "transaction %s is a coinbase", txHash)
	}
	err := validation.CheckTransactionSanity(tx)
	if err != nil {
		return nil, err
	}

	claim := &Claim{
		Tx:        tx,
		TxHash:    *txHash,
		Outpoints: make([]model.Outpoint, len(tx.Inputs)),
		Spents:    make([]*model.Spendable, len(tx.Inputs)),
		Size:      consensushashing.SerializeSize(tx),
	}
	for i, input := range tx.Inputs {
		if existing, ok := c.byOutpoint[input.PreviousOutpoint]; ok && existing.TxHash != *txHash {
			return nil, errors.Wrapf(ruleerrors.ErrDoubleSpend, "output %s of transaction %s "+
				"is already claimed by %s", input.PreviousOutpoint, txHash, existing.TxHash)
		}
		spent, err := view.Get(input.PreviousOutpoint)
		if err != nil {
			return nil, err
		}
		claim.Outpoints[i] = input.PreviousOutpoint
		claim.Spents[i] = spent
	}

	claim.Fee, err = validation.CalculateFee(tx, claim.Spents)
	if err != nil {
		return nil, err
	}
	minimumFee := validation.MinimumFee(claim.Size, c.minRelayTxFee)
	if claim.Fee < minimumFee {
		return nil, errors.Wrapf(ruleerrors.ErrInsufficientFee, "transaction %s pays %s, "+
			"minimum is %s", txHash, btcutil.Amount(claim.Fee), btcutil.Amount(minimumFee))
	}

	if v != nil {
		err = verifier.VerifyTransaction(v, tx, claim.Spents)
		if err != nil {
			return nil, err
		}
	}
	return claim, nil
}

// Claim claims the outputs tx spends. Claiming a transaction that is
// already claimed does nothing.
func (c *Claims) Claim(tx *model.Transaction, view SpendableView, v verifier.Verifier) error {
	if _, ok := c.byHash[*consensushashing.TransactionHash(tx)]; ok {
		return nil
	}
	claim, err := c.check(tx, view, v)
	if err != nil {
		return err
	}
	claim.ClaimedAt = c.now()
	c.insert(claim)
	log.Debugf("Claimed %d outputs by %s paying %s", len(claim.Outpoints), claim.TxHash,
		btcutil.Amount(claim.Fee))
	return nil
}

func (c *Claims) insert(claim *Claim) {
	c.byHash[claim.TxHash] = claim
	for _, outpoint := range claim.Outpoints {
		c.byOutpoint[outpoint] = claim
	}
}

func (c *Claims) remove(claim *Claim) {
	delete(c.byHash, claim.TxHash)
	for _, outpoint := range claim.Outpoints {
		if c.byOutpoint[outpoint] == claim {
			delete(c.byOutpoint, outpoint)
		}
	}
}

// Count returns the number of live claims.
func (c *Claims) Count() int {
	return len(c.byHash)
}

// Has returns whether the transaction with the given hash is claimed.
func (c *Claims) Has(txHash *chainhash.Hash) bool {
	_, ok := c.byHash[*txHash]
	return ok
}

// Get returns the claim of the transaction with the given hash.
func (c *Claims) Get(txHash *chainhash.Hash) (*Claim, bool) {
	claim, ok := c.byHash[*txHash]
	return claim, ok
}

// ClaimOf returns the claim holding outpoint.
func (c *Claims) ClaimOf(outpoint model.Outpoint) (*Claim, bool) {
	claim, ok := c.byOutpoint[outpoint]
	return claim, ok
}

// All returns the live claims, highest fee rate first. Equal rates are
// ordered by claim time, then by hash.
func (c *Claims) All() []*Claim {
	all := make([]*Claim, 0, len(c.byHash))
	for _, claim := range c.byHash {
		all = append(all, claim)
	}
	sort.Slice(all, func(i, j int) bool {
		rateI, rateJ := all[i].FeePerKB(), all[j].FeePerKB()
		if rateI != rateJ {
			return rateI > rateJ
		}
		if !all[i].ClaimedAt.Equal(all[j].ClaimedAt) {
			return all[i].ClaimedAt.Before(all[j].ClaimedAt)
		}
		return all[i].TxHash.String() < all[j].TxHash.String()
	})
	return all
}

// Confirm retires the claim of tx, which was just confirmed, and evicts
// the claims of other transactions spending any of its inputs. It returns
// every removed claim.
func (c *Claims) Confirm(tx *model.Transaction) []*Claim {
	var removed []*Claim
	if claim, ok := c.byHash[*consensushashing.TransactionHash(tx)]; ok {
		c.remove(claim)
		removed = append(removed, claim)
	}
	for _, input := range tx.Inputs {
		conflict, ok := c.byOutpoint[input.PreviousOutpoint]
		if !ok {
			continue
		}
		log.Debugf("Evicting claim %s, conflicting with confirmed transaction %s",
			conflict.TxHash, consensushashing.TransactionHash(tx))
		c.remove(conflict)
		removed = append(removed, conflict)
	}
	return removed
}

// Restore puts back a claim removed by Confirm or Remove.
func (c *Claims) Restore(claim *Claim) error {
	if _, ok := c.byHash[claim.TxHash]; ok {
		return errors.Errorf("claim %s already exists", claim.TxHash)
	}
	for _, outpoint := range claim.Outpoints {
		if existing, ok := c.byOutpoint[outpoint]; ok {
			return errors.Errorf("cannot restore claim %s: output %s is claimed by %s",
				claim.TxHash, outpoint, existing.TxHash)
		}
	}
	c.insert(claim)
	return nil
}

// Remove drops the claim of the transaction with the given hash and
// returns it.
func (c *Claims) Remove(txHash *chainhash.Hash) (*Claim, bool) {
	claim, ok := c.byHash[*txHash]
	if ok {
		c.remove(claim)
	}
	return claim, ok
}

// Revalidate drops every claim with an input that view no longer resolves
// and returns the dropped claims.
func (c *Claims) Revalidate(view SpendableView) []*Claim {
	var removed []*Claim
	for _, claim := range c.byHash {
		for _, outpoint := range claim.Outpoints {
			if _, err := view.Get(outpoint); err != nil {
				log.Debugf("Dropping claim %s: %s", claim.TxHash, err)
				removed = append(removed, claim)
				break
			}
		}
	}
	for _, claim := range removed {
		c.remove(claim)
	}
	return removed
}
