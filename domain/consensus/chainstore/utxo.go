package chainstore

import (
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/pkg/errors"
)

var utxoBucket = database.MakeBucket([]byte("utxo"))

func utxoKey(outpoint *model.Outpoint) *database.Key {
	return utxoBucket.Key(serialization.OutpointToBytes(outpoint))
}

// StoreSpendable adds spendable to the persisted unspent set.
func StoreSpendable(context Context, spendable *model.Spendable) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(utxoKey(&spendable.Outpoint), serialization.SpendableToBytes(spendable))
}

// DeleteSpendable removes outpoint from the persisted unspent set.
func DeleteSpendable(context Context, outpoint *model.Outpoint) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(utxoKey(outpoint))
}

// ForEachSpendable calls fn for every persisted unspent output.
func ForEachSpendable(context Context, fn func(spendable *model.Spendable) error) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	cursor, err := accessor.Cursor(utxoBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for cursor.Next() {
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		spendable, err := serialization.BytesToSpendable(value)
		if err != nil {
			key, _ := cursor.Key()
			return errors.Wrapf(err, "bad unspent record %s", key)
		}
		err = fn(spendable)
		if err != nil {
			return err
		}
	}
	return nil
}
