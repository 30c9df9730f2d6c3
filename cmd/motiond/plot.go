package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"plcmotion/pkg/trace"
)

var (
	plotOut    string
	plotTitle  string
	plotBand   float64
	plotPeriod float64
	plotNFFT   int
)

var plotCmd = &cobra.Command{
	Use:   "plot <trace.csv>",
	Short: "Plot a recorded trace and print its statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		samples, err := trace.ReadCSV(f)
		f.Close()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(trace.Summarize(samples, plotBand)); err != nil {
			return err
		}
		if plotNFFT > 0 {
			psd := trace.LagSpectrum(samples, plotPeriod, plotNFFT)
			if freq, power := psd.Peak(1); freq > 0 {
				fmt.Fprintf(out, "following error peak: %.1f Hz (%.3g)\n", freq, power)
			}
		}

		path := plotOut
		if path == "" {
			path = strings.TrimSuffix(args[0], ".csv") + ".png"
		}
		if err := trace.SavePNG(path, samples, trace.PlotOptions{Title: plotTitle}); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
		return nil
	},
}

func init() {
	plotCmd.Flags().StringVarP(&plotOut, "output", "o", "", "PNG path (default: trace path with .png)")
	plotCmd.Flags().StringVar(&plotTitle, "title", "", "plot title")
	plotCmd.Flags().Float64Var(&plotBand, "settle-band", 1e-3, "following error band for the settle time")
	plotCmd.Flags().Float64Var(&plotPeriod, "period", 1.0/demoFrequency, "sample period in seconds for the spectrum")
	plotCmd.Flags().IntVar(&plotNFFT, "nfft", 0, "FFT length for the following error spectrum, 0 to skip")
}
