package main

import (
	"io"

	"github.com/alecthomas/kong"
	"github.com/google/logger"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Serve    ServeCmd         `cmd:"" default:"1" help:"Run the lottery host and HTTP API"`
	ABI      ABICmd           `cmd:"" name:"abi" help:"Print the contract interface description"`
	Scenario ScenarioCmd      `cmd:"" help:"Run YAML lottery scenarios"`
	Init     InitCmd          `cmd:"" help:"Write a starter config file"`
}

func main() {
	defer logger.Init("poolwager", true, false, io.Discard).Close()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("poolwager"),
		kong.Description("Pooled-wager lottery host"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
