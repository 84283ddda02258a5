package main

import (
	"os"

	"github.com/ostiwe/vksaver/cmd"
	"github.com/ostiwe/vksaver/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
