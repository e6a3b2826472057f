package boltdb

import "github.com/coinchain/coinchaind/infrastructure/logger"

var log = logger.RegisterSubSystem("BOLT")
