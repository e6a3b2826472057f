package claims

import (
	"github.com/coinchain/coinchaind/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CLMS")
