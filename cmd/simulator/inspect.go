package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/supplier-sim/internal/config"
	"github.com/signalsfoundry/supplier-sim/internal/trajectory"
	"github.com/signalsfoundry/supplier-sim/model"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "inspect [episode-id]",
		Short: "List stored episodes, or print the steps of one episode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				path, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				dbPath = cfg.Output.SQLite
			}
			if dbPath == "" {
				return fmt.Errorf("no database: set --db or output.sqlite")
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return inspect(cmd.Context(), dbPath, id, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by run (defaults to output.sqlite)")
	return cmd
}

func inspect(ctx context.Context, dbPath, episodeID string, out io.Writer) error {
	store, err := trajectory.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if episodeID == "" {
		rows, err := store.ListEpisodes(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "EPISODE\tPOLICY\tSEED\tSTEPS\tLOG_MEAN_COST\tLOG_MEAN_SHORTAGE\tAVG_UNIT_PRICE\tSTARTED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.Policy, r.Seed, r.Steps,
				formatStat(r.LogMeanCost), formatStat(r.LogMeanShortage), formatStat(r.AvgUnitPrice),
				r.StartedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	}

	ep, err := store.Episode(ctx, episodeID)
	if err != nil {
		return err
	}
	steps, err := store.Steps(ctx, episodeID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "episode %s policy=%s steps=%d total_cost=%s total_purchase=%s\n",
		ep.ID, ep.Policy, ep.Steps, formatFloat(ep.TotalCost), formatFloat(ep.TotalPurchase))
	fmt.Fprintln(tw, "INDEX\tDATE\tPURCHASE\tDEMAND\tSHORTAGE\tCOST\tREWARD")
	for _, s := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Index, s.Date.Format("2006-01-02"),
			formatFloat(s.Purchase), formatFloat(s.Demand), formatFloat(s.Shortage),
			formatFloat(s.Cost), formatFloat(s.Reward))
	}
	return tw.Flush()
}

func formatStat(s model.Stat) string {
	if !s.Valid {
		return "n/a"
	}
	return formatFloat(s.Value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
