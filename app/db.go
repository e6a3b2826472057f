package app

import (
	"os"
	"path/filepath"

	"github.com/coinchain/coinchaind/infrastructure/config"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/coinchain/coinchaind/infrastructure/db/database/boltdb"
	"github.com/coinchain/coinchaind/infrastructure/db/database/ldb"
	"github.com/pkg/errors"
)

const (
	leveldbCacheSizeMiB = 256
	boltFileName        = "chain.db"
)

// databasePath returns the directory of the configured backend. Each
// backend gets its own directory so switching --dbtype never opens the
// files of the other one.
func databasePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, cfg.DbType)
}

func openDB(cfg *config.Config) (database.Database, error) {
	dbPath := databasePath(cfg)
	err := os.MkdirAll(dbPath, 0700)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dbPath)
	}

	isVersionFileExist, err := checkDatabaseVersion(dbPath)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading %s database from '%s'", cfg.DbType, dbPath)
	var db database.Database
	switch cfg.DbType {
	case config.DbTypeLevelDB:
		db, err = ldb.NewLevelDB(dbPath, leveldbCacheSizeMiB)
	case config.DbTypeBolt:
		db, err = boltdb.NewBoltDB(filepath.Join(dbPath, boltFileName))
	default:
		return nil, errors.Errorf("unknown database type %s", cfg.DbType)
	}
	if err != nil {
		return nil, err
	}

	if !isVersionFileExist {
		err := createDatabaseVersionFile(dbPath)
		if err != nil {
			closeErr := db.Close()
			if closeErr != nil {
				log.Errorf("Error closing the database: %s", closeErr)
			}
			return nil, err
		}
	}
	return db, nil
}
