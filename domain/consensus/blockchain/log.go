package blockchain

import (
	"github.com/coinchain/coinchaind/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CHAN")
