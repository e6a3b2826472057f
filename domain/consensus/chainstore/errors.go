package chainstore

import "github.com/coinchain/coinchaind/infrastructure/db/database"

// IsNotFoundError checks whether an error is an ErrNotFound.
func IsNotFoundError(err error) bool {
	return database.IsNotFoundError(err)
}
