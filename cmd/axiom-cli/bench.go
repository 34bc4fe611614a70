package main

import (
	"fmt"
	"io"
	"math/bits"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/fhe"
)

// maxChartPoints bounds the noise growth series.
const maxChartPoints = 64

// timing summarizes the samples of one operation in microseconds.
type timing struct {
	Op     string
	Mean   float64
	Median float64
	P95    float64
	StdDev float64
}

func summarize(op string, samples []time.Duration) timing {
	values := make(stats.Float64Data, len(samples))
	for i, d := range samples {
		values[i] = float64(d.Microseconds())
	}
	mean, _ := values.Mean()
	median, _ := values.Median()
	p95, _ := values.Percentile(95)
	stddev, _ := values.StandardDeviation()
	return timing{Op: op, Mean: mean, Median: median, P95: p95, StdDev: stddev}
}

func measure(n int, fn func(i int) error) ([]time.Duration, error) {
	samples := make([]time.Duration, n)
	for i := range samples {
		start := time.Now()
		if err := fn(i); err != nil {
			return nil, err
		}
		samples[i] = time.Since(start)
	}
	return samples, nil
}

// noisePoint is the tracked noise after a number of fresh additions.
type noisePoint struct {
	Additions uint64
	NoiseBits int
	Decrypted bool
}

// noiseGrowth keeps adding fresh ciphertexts to an accumulator, doubling the
// step each time, until the noise budget is exhausted.
func noiseGrowth(kp *axiom.KeyPair, enc *fhe.Encryptor, ev *fhe.Evaluator) ([]noisePoint, error) {
	acc, err := enc.EncryptWithNonce(1, []byte("acc"))
	if err != nil {
		return nil, err
	}
	var points []noisePoint
	adds := uint64(0)
	for step := uint64(1); len(points) < maxChartPoints; step *= 2 {
		if ev.MaxAdditions(acc) < step {
			break
		}
		fresh, err := enc.EncryptWithNonce(0, []byte(fmt.Sprintf("step-%d", step)))
		if err != nil {
			return nil, err
		}
		scaled, err := ev.Scale(fresh, int64(step))
		if err != nil {
			break
		}
		if acc, err = ev.Add(acc, scaled); err != nil {
			break
		}
		adds += step
		m, err := fhe.Decrypt(&kp.SecretKey, acc)
		points = append(points, noisePoint{
			Additions: adds,
			NoiseBits: bits.Len64(acc.Noise),
			Decrypted: err == nil && m == 1,
		})
	}
	return points, nil
}

func renderNoiseChart(w io.Writer, p axiom.Parameters, points []noisePoint) error {
	x := make([]string, len(points))
	noise := make([]opts.LineData, len(points))
	bound := make([]opts.LineData, len(points))
	for i, pt := range points {
		x[i] = fmt.Sprintf("%d", pt.Additions)
		noise[i] = opts.LineData{Value: pt.NoiseBits}
		bound[i] = opts.LineData{Value: bits.Len64(p.NoiseBound)}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Noise growth " + p.Name,
			Subtitle: fmt.Sprintf("fresh noise %d, bound 2^%d", (uint64(p.M)+1)*p.ErrorBound, bits.Len64(p.NoiseBound)-1),
		}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "axiom noise growth", Width: "1200px", Height: "600px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "fresh additions"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bits"}),
	)
	line.SetXAxis(x).
		AddSeries("tracked noise", noise).
		AddSeries("noise bound", bound)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}

func newBenchCmd(a *app) *cobra.Command {
	var (
		iterations int
		chart      string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the cipher engine and chart noise growth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations < 1 {
				iterations = 1
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			p, err := a.cfg.Params()
			if err != nil {
				return err
			}
			mode, err := a.cfg.ParsedMode()
			if err != nil {
				return err
			}
			seed := a.cfg.SeedBytes()

			var kp *axiom.KeyPair
			keygen, err := measure(iterations, func(int) error {
				var err error
				kp, err = fhe.GenerateKeys(p, seed, mode)
				return err
			})
			if err != nil {
				return err
			}
			enc, err := fhe.NewEncryptor(&kp.PublicKey, mode, seed)
			if err != nil {
				return err
			}
			ev, err := fhe.NewEvaluator(p)
			if err != nil {
				return err
			}

			cts := make([]*axiom.Ciphertext, iterations)
			encrypt, err := measure(iterations, func(i int) error {
				var err error
				cts[i], err = enc.EncryptWithNonce(uint32(uint64(i)%p.T), []byte(fmt.Sprint(i)))
				return err
			})
			if err != nil {
				return err
			}
			decrypt, err := measure(iterations, func(i int) error {
				_, err := fhe.Decrypt(&kp.SecretKey, cts[i])
				return err
			})
			if err != nil {
				return err
			}
			add, err := measure(iterations, func(i int) error {
				_, err := ev.Add(cts[i], cts[(i+1)%iterations])
				return err
			})
			if err != nil {
				return err
			}
			scale, err := measure(iterations, func(i int) error {
				_, err := ev.Scale(cts[i], 3)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "axiom Benchmark Results\n")
			fmt.Fprintf(out, "=======================\n")
			fmt.Fprintf(out, "Parameter Set: %s\n", p.Name)
			fmt.Fprintf(out, "Mode: %s\n", mode)
			fmt.Fprintf(out, "Iterations: %d\n\n", iterations)
			fmt.Fprintf(out, "%-8s %12s %12s %12s %12s\n", "op", "mean(us)", "median(us)", "p95(us)", "stddev(us)")
			for _, t := range []timing{
				summarize("keygen", keygen),
				summarize("encrypt", encrypt),
				summarize("decrypt", decrypt),
				summarize("add", add),
				summarize("scale", scale),
			} {
				fmt.Fprintf(out, "%-8s %12.1f %12.1f %12.1f %12.1f\n", t.Op, t.Mean, t.Median, t.P95, t.StdDev)
			}
			fmt.Fprintf(out, "\nFresh additions before overflow: %d\n", ev.MaxAdditions(cts[0]))

			if chart == "" {
				return nil
			}
			points, err := noiseGrowth(kp, enc, ev)
			if err != nil {
				return err
			}
			f, err := os.Create(chart)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := renderNoiseChart(f, p, points); err != nil {
				return err
			}
			a.logger.Info("wrote noise growth chart", "path", chart, "points", len(points))
			return nil
		},
	}
	cmd.Flags().IntVarP(&iterations, "rounds", "n", 10, "rounds per operation")
	cmd.Flags().StringVar(&chart, "chart", "", "write an HTML noise growth chart to this file")
	return cmd
}
