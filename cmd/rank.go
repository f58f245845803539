package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/amenity"
	"github.com/sells-group/amenity-cli/internal/config"
	"github.com/sells-group/amenity-cli/internal/model"
)

var rankFlags struct {
	radius    int
	keywords  string
	k         int
	auxRadius int
	format    string
	output    string
	progress  bool
}

var rankCmd = &cobra.Command{
	Use:   "rank <location>",
	Short: "Rank accommodation near a location by amenity access",
	Long:  "Resolves <location> (free text or \"lat,lng\"), searches nearby accommodation and labels each result Low, Moderate or High by the restaurants around it.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		q, err := rankQuery(strings.Join(args, " "))
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, cfg, config.ModeRank)
		if err != nil {
			return err
		}
		defer env.Close()

		var progress amenity.ProgressFunc
		if rankFlags.progress {
			progress = newProgressReporter(os.Stderr)
		}

		res, err := env.Rank(ctx, q, progress)
		if err != nil {
			return eris.Wrap(err, "rank")
		}

		out := io.Writer(os.Stdout)
		if rankFlags.output != "" {
			f, err := os.Create(rankFlags.output)
			if err != nil {
				return eris.Wrap(err, "rank: create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		zap.L().Info("rank complete",
			zap.String("run_id", res.RunID),
			zap.Int("records", len(res.Records)),
			zap.Float64("cost_usd", res.Usage.CostUSD),
		)
		return renderResult(out, rankFlags.format, res)
	},
}

// rankQuery builds the query from flags, falling back to config defaults.
func rankQuery(text string) (model.Query, error) {
	q := model.Query{
		Text:            strings.TrimSpace(text),
		Radius:          rankFlags.radius,
		ClusterCount:    rankFlags.k,
		AuxiliaryRadius: rankFlags.auxRadius,
	}
	if rankFlags.keywords != "" {
		q.Keywords = strings.Split(rankFlags.keywords, "|")
	}
	q = queryFromConfig(cfg, q)

	if q.Radius < config.MinSearchRadius || q.Radius > config.MaxSearchRadius {
		return q, eris.Wrapf(model.ErrInvalidParameter, "radius must be between %d and %d meters, got %d",
			config.MinSearchRadius, config.MaxSearchRadius, q.Radius)
	}
	if rankFlags.format == FormatXLSX && rankFlags.output == "" {
		return q, eris.Wrap(model.ErrInvalidParameter, "xlsx output requires --output")
	}
	return q, nil
}

// newProgressReporter returns a ProgressFunc drawing a bar on w. The bar is
// created on the first report, once the total is known.
func newProgressReporter(w io.Writer) amenity.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan]Counting amenities...[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		// Reports can arrive out of order across workers.
		if int64(done) > bar.State().CurrentNum {
			if err := bar.Set(done); err != nil {
				zap.L().Debug("failed to update progress bar", zap.Error(err))
			}
		}
	}
}

func init() {
	f := rankCmd.Flags()
	f.IntVar(&rankFlags.radius, "radius", 0, "search radius in meters, 1000-10000 (default from config)")
	f.StringVar(&rankFlags.keywords, "keywords", "", "\"|\"-separated search keywords (default from config)")
	f.IntVar(&rankFlags.k, "clusters", 0, "number of clusters (default from config)")
	f.IntVar(&rankFlags.auxRadius, "aux-radius", 0, "amenity search radius in meters (default from config)")
	f.StringVarP(&rankFlags.format, "format", "f", FormatTable, "output format: table, json, yaml, geojson, xlsx")
	f.StringVarP(&rankFlags.output, "output", "o", "", "write output to file instead of stdout")
	f.BoolVar(&rankFlags.progress, "progress", true, "show enrichment progress on stderr")
	rootCmd.AddCommand(rankCmd)
}
