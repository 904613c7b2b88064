package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/firetrends/internal/fems"
	"github.com/lox/firetrends/internal/runlog"
	"github.com/lox/firetrends/internal/store"
)

// Globals are flags shared by every command.
type Globals struct {
	DB       string `default:"data/firetrends.db" env:"FIRETRENDS_DB" help:"Path to SQLite database."`
	Timezone string `default:"America/Denver" env:"FIRETRENDS_TZ" help:"Timezone for the run date and update stamp."`
	LogLevel string `default:"info" env:"FIRETRENDS_LOG_LEVEL" enum:"debug,info,warn,error" help:"Log level."`
}

type CLI struct {
	Globals

	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file.'"`

	Run    RunCmd    `cmd:"" default:"1" help:"Fetch the index series, compute station and zone trends, and publish them."`
	Import ImportCmd `cmd:"" help:"Load stations, zone associations and percentile tables from a YAML file."`
	Show   ShowCmd   `cmd:"" help:"Print the latest published station and zone tables."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("firetrends"),
		kong.Description("Daily ERC/BI percentile and trend analysis for fire weather stations and zones."),
		kong.UsageOnError(),
		kong.Vars{"fems_url": fems.DefaultURL},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		slog.Warn("could not load timezone, using UTC", "timezone", g.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

func (g *Globals) consoleLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: runlog.ParseLevel(g.LogLevel)}))
}

// openStore opens and migrates the database. The returned func closes it.
func (g *Globals) openStore(loc *time.Location) (*store.Store, func(), error) {
	db, err := store.Open(g.DB)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}
