package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/cobra"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/services/forecasting"
	"DemandCast/internal/usecase"
	"DemandCast/pkg/cache"
	xhttp "DemandCast/pkg/http"
	"DemandCast/pkg/metrics"
	"DemandCast/pkg/queue"
)

// runCmd forecasts an inline request read from a JSON file or stdin.
func runCmd() *cobra.Command {
	var (
		input  string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forecast an inline series without any backing store",
		Long: `Reads a forecast body (the POST /api/forecast payload with an inline series)
and prints the full forecast result as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			body, err := readBody(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			req, err := body.ToRequest()
			if err != nil {
				return err
			}

			l := newLogger()
			reg, err := forecasting.NewDefaultRegistry(cfg.Forecasting)
			if err != nil {
				return fmt.Errorf("failed to build registry: %w", err)
			}
			p, err := forecasting.NewPipeline(cfg.Forecasting, reg, forecasting.WithLogger(l))
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			uc := usecase.NewForecastUsecase(forecasting.NewService(p, nil, l), nil, nil, nil, metrics.Nop{}, l)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			res, err := uc.Forecast(ctx, req, true)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), models.NewForecastResponse(res), pretty)
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "-", "Request file, - for stdin")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	return cmd
}

// modelsCmd lists the registered forecasting models.
func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the registered forecasting models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := forecasting.NewDefaultRegistry(cfg.Forecasting)
			if err != nil {
				return fmt.Errorf("failed to build registry: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCOMPLEXITY\tMIN_OBS\tSEASONAL\tSTABLE_TREND\tSHORT\tCATEGORY_PROFILE")
			for _, s := range reg.Specs() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%t\t%t\t%t\n",
					s.Name, s.Complexity, s.MinObservations,
					s.RequiresSeasonality, s.RequiresStableTrend, s.ShortSeriesCapable, s.NeedsCategoryProfile)
			}
			return w.Flush()
		},
	}
}

// enqueueCmd schedules a history population job on the redis queue.
func enqueueCmd() *cobra.Command {
	var body models.PopulateJobBody
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a forecast history population job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := defaults.Set(&body); err != nil {
				return err
			}
			if verrs := xhttp.Validate(body); len(verrs) > 0 {
				return fmt.Errorf("invalid job: %s %s", verrs[0].Field, verrs[0].Message)
			}

			rc, err := cache.NewRedisCache(
				cache.WithRedisHost(cfg.Redis.Host),
				cache.WithRedisPort(cfg.Redis.Port),
				cache.WithRedisPassword(cfg.Redis.Password),
				cache.WithRedisDB(cfg.Redis.DB),
				cache.WithRedisPrefix(cfg.Redis.Prefix),
			)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer rc.Close()

			q := queue.NewRedisQueue(newLogger(), queue.QueueConfig{}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
			id, err := q.Enqueue(cmd.Context(), usecase.PopulateHistoryJobType, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s job %s for %s\n", usecase.PopulateHistoryJobType, id, body.Selector())
			return nil
		},
	}
	cmd.Flags().StringVar(&body.Store, "store", "", "Store identifier")
	cmd.Flags().StringVar(&body.Category, "category", "", "Category identifier")
	cmd.Flags().StringVar(&body.Product, "product", "", "Product identifier (category level when empty)")
	cmd.Flags().StringVar(&body.Granularity, "granularity", "", "daily, weekly or monthly")
	cmd.Flags().IntVar(&body.Horizon, "horizon", 0, "Periods to forecast")
	cmd.Flags().IntVar(&body.Lookback, "lookback", 0, "Periods of history to load")
	cmd.Flags().StringVar(&body.Tier, "tier", "", "Threshold tier")
	cmd.MarkFlagRequired("store")
	cmd.MarkFlagRequired("category")
	return cmd
}

func readBody(stdin io.Reader, path string) (models.ForecastBody, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" || path == "" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return models.ForecastBody{}, fmt.Errorf("failed to read request: %w", err)
	}
	var body models.ForecastBody
	if err := json.Unmarshal(b, &body); err != nil {
		return models.ForecastBody{}, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := defaults.Set(&body); err != nil {
		return models.ForecastBody{}, err
	}
	if verrs := xhttp.Validate(body); len(verrs) > 0 {
		return models.ForecastBody{}, fmt.Errorf("invalid request: %s %s", verrs[0].Field, verrs[0].Message)
	}
	if !body.Inline() {
		return models.ForecastBody{}, fmt.Errorf("request has no inline series")
	}
	return body, nil
}

func writeJSON(w io.Writer, v interface{}, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
