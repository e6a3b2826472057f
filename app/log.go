package app

import (
	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/coinchain/coinchaind/util/panics"
)

var log = logger.RegisterSubSystem("CCHD")
var spawn = panics.GoroutineWrapperFunc(log)
