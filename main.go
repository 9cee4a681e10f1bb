package main

import (
	"os"

	"github.com/blacktop/xshare/cmd"
	"github.com/blacktop/xshare/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
