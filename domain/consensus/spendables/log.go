package spendables

import (
	"github.com/coinchain/coinchaind/infrastructure/logger"
)

var log = logger.RegisterSubSystem("SPND")
