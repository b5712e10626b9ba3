package main

import (
	"github.com/stagecheck/stagecheck/cmd"
	"github.com/stagecheck/stagecheck/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
