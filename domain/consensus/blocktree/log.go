package blocktree

import (
	"github.com/coinchain/coinchaind/infrastructure/logger"
)

var log = logger.RegisterSubSystem("BTRE")
