package main

import (
	"context"

	"github.com/lox/firetrends/internal/refdata"
)

type ImportCmd struct {
	File string `arg:"" type:"existingfile" help:"Reference data YAML file."`
}

func (c *ImportCmd) Run(g *Globals) error {
	logger := g.consoleLogger()

	f, err := refdata.Load(c.File)
	if err != nil {
		return err
	}

	st, closeDB, err := g.openStore(g.location())
	if err != nil {
		return err
	}
	defer closeDB()

	sum, err := f.Apply(context.Background(), st)
	if err != nil {
		return err
	}
	logger.Info("reference data imported",
		"file", c.File,
		"stations", sum.Stations,
		"associations", sum.Associations,
		"bin_tables", sum.BinTables,
		"bins", sum.Bins)
	return nil
}
