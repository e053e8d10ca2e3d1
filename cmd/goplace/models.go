package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage saved models",
	}
	cmd.AddCommand(a.listCmd(), a.deleteCmd(), a.bestCmd())
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved models, newest first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			t, closeStore, err := a.trainer()
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := t.Manager().List()
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON(records)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tALGORITHM\tEPISODE\tREWARD\tSAVED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%s\n", rec.Name,
					rec.Algorithm, rec.Episode, rec.Reward,
					rec.Timestamp.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete saved models",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			t, closeStore, err := a.trainer()
			if err != nil {
				return err
			}
			defer closeStore()

			for _, name := range args {
				deleted, err := t.Manager().Delete(name)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("model %q not found", name)
				}
				fmt.Fprintf(a.out, "deleted %v\n", name)
			}
			return nil
		},
	}
}

func (a *app) bestCmd() *cobra.Command {
	var (
		metric   string
		minimize bool
	)

	cmd := &cobra.Command{
		Use:   "best",
		Short: "Print the saved model with the best value of a metric",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			t, closeStore, err := a.trainer()
			if err != nil {
				return err
			}
			defer closeStore()

			rec, ok, err := t.Manager().Best(metric, !minimize)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no model has metric %q", metric)
			}
			value, _ := rec.Metric(metric)
			fmt.Fprintf(a.out, "%v\t%v=%v\n", rec.Name, metric, value)
			return nil
		},
	}
	cmd.Flags().StringVarP(&metric, "metric", "m", "reward",
		"metric to compare")
	cmd.Flags().BoolVar(&minimize, "minimize", false,
		"pick the smallest value instead of the largest")
	return cmd
}
