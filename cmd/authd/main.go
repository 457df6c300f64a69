package main

import (
	"os"

	"github.com/AstralVarkon/azure-iot-sdks/cmd/authd/cmd"
)

func main() {
	cmd.Execute()
	os.Exit(0)
}
