package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempcast/tempcast/internal/client"
	"github.com/tempcast/tempcast/internal/forecast"
)

type rootOptions struct {
	apiURL  string
	timeout time.Duration
	asJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tempcastctl",
		Short: "Request and retrieve temperature forecasts",
		Long: `tempcastctl talks to a tempcast API server.

Forecasts are computed asynchronously: submit returns a task id, and get
or wait retrieves the result once a worker has produced it.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("TEMPCAST_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", defaultURL, "tempcast API base URL (env TEMPCAST_API_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	cmd.AddCommand(
		newSubmitCmd(opts),
		newGetCmd(opts),
		newWaitCmd(opts),
		newWeatherCmd(opts),
		newLocationsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.apiURL, &http.Client{Timeout: o.timeout})
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var loc, date string

	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Request a forecast for a location and date",
		Example: `  tempcastctl submit --location Moscow --date 2024-03-20`,
		Args:    cobra.NoArgs,
		RunE:    func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			sub, err := opts.client().Submit(ctx, loc, date)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), sub)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sub.Status, sub.TaskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&loc, "location", "", "location name, see 'tempcastctl locations'")
	cmd.Flags().StringVar(&date, "date", "", "target date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a computed forecast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			result, err := opts.client().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, opts.asJSON)
		},
	}
}

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var interval, maxWait time.Duration

	cmd := &cobra.Command{
		Use:   "wait <task-id>",
		Short: "Poll until a forecast is computed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), maxWait)
			defer cancel()

			result, err := opts.client().Wait(ctx, args[0], interval)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, opts.asJSON)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 5*time.Minute, "give up after this long")
	return cmd
}

func newWeatherCmd(opts *rootOptions) *cobra.Command {
	var loc, date string

	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show observed weather for a past date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			obs, err := opts.client().Weather(ctx, loc, date)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), obs)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: min %.1f, mean %.1f, max %.1f C, precipitation %.1f mm\n",
				loc, obs.DateString(), obs.TempMin, obs.TempAvg, obs.TempMax, obs.Precipitation)
			return nil
		},
	}

	cmd.Flags().StringVar(&loc, "location", "", "location name")
	cmd.Flags().StringVar(&date, "date", "", "past date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newLocationsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List supported locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			items, err := opts.client().Locations(ctx)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tLAT\tLON")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", it.Name, it.Lat, it.Lon)
			}
			return tw.Flush()
		},
	}
}

func printResult(w io.Writer, r *forecast.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "min %.2f  mean %.2f  max %.2f  (model %s, computed %s)\n",
		r.Forecast.TempMin, r.Forecast.TempMean, r.Forecast.TempMax,
		r.Metadata.ModelID, r.Metadata.ComputedAt.Format(time.RFC3339))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
