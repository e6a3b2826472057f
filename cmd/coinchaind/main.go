package main

import (
	"os"

	"github.com/coinchain/coinchaind/app"
)

func main() {
	if err := app.StartApp(); err != nil {
		os.Exit(1)
	}
}
