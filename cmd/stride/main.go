package main

import (
	"github.com/alecthomas/kong"
	"github.com/stridedb/stride/pkg/inspect"
)

var cli struct {
	Status        inspect.StatusCmd        `cmd:"" help:"Report whether the metadata layer is loaded."`
	Nodes         inspect.NodesCmd         `cmd:"" help:"List the worker nodes."`
	Table         inspect.TableCmd         `cmd:"" help:"Show the metadata for a distributed table."`
	Shard         inspect.ShardCmd         `cmd:"" help:"Show one shard interval."`
	Create        inspect.CreateCmd        `cmd:"" help:"Bootstrap the metadata catalog."`
	AddNode       inspect.AddNodeCmd       `cmd:"" help:"Register a worker node."`
	SetNodeActive inspect.SetNodeActiveCmd `cmd:"" help:"Activate or deactivate a worker node."`
	Watch         inspect.WatchCmd         `cmd:"" help:"Follow the binary log and print catalog invalidations."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("stride"),
		kong.Description("Stride: distributed table metadata for MySQL"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
