package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/lox/firetrends/internal/models"
	"github.com/lox/firetrends/internal/store"
)

type ShowCmd struct {
	Table string `default:"all" enum:"all,stations,zones,runs" help:"Which table to print."`
	Runs  int    `default:"10" help:"Number of recent runs to list."`
}

func (c *ShowCmd) Run(g *Globals) error {
	st, closeDB, err := g.openStore(g.location())
	if err != nil {
		return err
	}
	defer closeDB()
	return c.print(context.Background(), st, os.Stdout)
}

func (c *ShowCmd) print(ctx context.Context, st *store.Store, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if c.Table == "all" || c.Table == "stations" {
		rows, err := st.StationTrends(ctx)
		if err != nil {
			return fmt.Errorf("load station trends: %w", err)
		}
		fmt.Fprintln(w, "STATION\tNAME\tERC\tERC%\tERC TREND\tERC FCST\tERC FCST%\tERC FCST TREND\tBI\tBI%\tBI TREND\tBI FCST\tBI FCST%\tBI FCST TREND\tUPDATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s %s\n",
				r.StationID, r.StationName,
				num(r.ERC), num(r.ERCPercentile), str(r.ERCTrend), num(r.ERCFcast), num(r.ERCFcastPercentile), str(r.ERCFcastTrend),
				num(r.BI), num(r.BIPercentile), str(r.BITrend), num(r.BIFcast), num(r.BIFcastPercentile), str(r.BIFcastTrend),
				r.UpdateDate, r.UpdateTime)
		}
		fmt.Fprintln(w)
	}

	if c.Table == "all" || c.Table == "zones" {
		rows, err := st.ZoneTrends(ctx)
		if err != nil {
			return fmt.Errorf("load zone trends: %w", err)
		}
		fmt.Fprintln(w, "ZONE\tSTATIONS\tERC\tERC%\tERC TREND\tERC FCST\tERC FCST%\tERC FCST TREND\tBI\tBI%\tBI TREND\tBI FCST\tBI FCST%\tBI FCST TREND\tUPDATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s %s\n",
				r.ZoneID, r.Stations,
				num(r.AvgERC), num(r.AvgERCPercentile), str(r.AvgERCTrend), num(r.AvgERCFcast), num(r.AvgERCFcastPercentile), str(r.AvgERCFcastTrend),
				num(r.AvgBI), num(r.AvgBIPercentile), str(r.AvgBITrend), num(r.AvgBIFcast), num(r.AvgBIFcastPercentile), str(r.AvgBIFcastTrend),
				r.UpdateDate, r.UpdateTime)
		}
		fmt.Fprintln(w)
	}

	if c.Table == "all" || c.Table == "runs" {
		runs, err := st.RecentRuns(ctx, c.Runs)
		if err != nil {
			return fmt.Errorf("load runs: %w", err)
		}
		fmt.Fprintln(w, "RUN\tDATE\tSOURCE\tSTARTED\tOK\tSTATIONS\tZONES\tDIAGNOSTICS\tERROR")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%d\t%d\t%s\n",
				r.ID, r.RunDate, r.Source, r.StartedAt.Format("2006-01-02 15:04:05"), r.Success,
				r.Stations.Int64, r.Zones.Int64, r.Diagnostics.Int64, r.ErrorMessage.String)
		}
	}
	return nil
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func str(v *string) string {
	if v == nil {
		return models.TrendUnknown.String()
	}
	return *v
}
