package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/goplace/trainer"
	"github.com/samuelfneumann/goplace/utils/progressbar"
)

const barWidth = 40

// readRequest decodes a JSON or YAML request file over req
func readRequest(path string, req any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read request: %v", err)
	}

	// JSON is a subset of YAML
	if err := yaml.Unmarshal(data, req); err != nil {
		return fmt.Errorf("could not parse request %v: %v", path, err)
	}
	return nil
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) trainCmd() *cobra.Command {
	var (
		algorithm string
		episodes  int
		gnn       bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "train REQUEST",
		Short: "Train a placement model on the circuit of a request file",
		Long: `Train reads a training request from a JSON or YAML file, trains
an agent on its circuit, and prints the result as JSON. Hyperparameters
missing from the file take their configured defaults. With --gnn, the
graph placement model is fit instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, closeStore, err := a.trainer()
			if err != nil {
				return err
			}
			defer closeStore()

			if gnn {
				req := trainer.DefaultGNNRequest()
				if err := readRequest(args[0], &req); err != nil {
					return err
				}
				result, err := t.TrainGNN(cmd.Context(), req)
				if err != nil {
					return err
				}
				return a.writeJSON(result)
			}

			req := a.config.Request()
			if err := readRequest(args[0], &req); err != nil {
				return err
			}
			if cmd.Flags().Changed("algorithm") {
				req.Algorithm = algorithm
			}
			if cmd.Flags().Changed("episodes") {
				req.Episodes = episodes
			}

			var progress trainer.ProgressFunc
			if !quiet {
				bar := progressbar.NewManualProgressBar(a.errOut, barWidth,
					req.Episodes)
				defer bar.Close()
				progress = func(_, _ int, reward float64) {
					bar.Increment()
					bar.SetStatus("reward: %.3f", reward)
					bar.Display()
				}
			}

			result, err := t.Train(cmd.Context(), req, progress)
			if err != nil {
				return err
			}
			return a.writeJSON(result)
		},
	}

	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "",
		fmt.Sprintf("algorithm to train, one of %v", trainer.Algorithms))
	cmd.Flags().IntVarP(&episodes, "episodes", "n", 0,
		"number of training episodes")
	cmd.Flags().BoolVar(&gnn, "gnn", false, "fit the graph placement model")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}
