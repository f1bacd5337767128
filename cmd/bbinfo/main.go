// Command bbinfo inspects and queries bigBed/bigWig containers from the
// command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jetbrains-research/bigbin/bigbin"
)

var (
	logger = logrus.New()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.WithError(err).Error("bbinfo: command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bbinfo",
		Short: "Inspect and query bigBed/bigWig containers",
	}
	root.PersistentFlags().String("file", "", "path to a .bb/.bw file")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	_ = viper.BindPFlag("file", root.PersistentFlags().Lookup("file"))
	_ = viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			logger.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(newHeaderCmd(), newChromsCmd(), newQueryCmd(), newZoomCmd())
	return root
}

func openFromFlag() (*bigbin.Reader, func(), error) {
	path := viper.GetString("file")
	if path == "" {
		return nil, nil, fmt.Errorf("--file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := bigbin.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, func() { f.Close() }, nil
}

func newHeaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "header",
		Short: "Print the container header",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openFromFlag()
			if err != nil {
				return err
			}
			defer closeFn()

			h := r.Header
			kind := "bigBed"
			if h.Kind == bigbin.BigWig {
				kind = "bigWig"
			}
			fmt.Printf("kind: %s\n", kind)
			fmt.Printf("version: %d\n", h.Version)
			fmt.Printf("chromTreeOffset: %d\n", h.ChromTreeOffset)
			fmt.Printf("fullDataOffset: %d\n", h.FullDataOffset)
			fmt.Printf("fullIndexOffset: %d\n", h.FullIndexOffset)
			fmt.Printf("zoomLevels: %d\n", len(h.Zoom))
			summary := r.Summary()
			fmt.Printf("validCount: %d\n", summary.ValidCount)
			fmt.Printf("min: %g max: %g\n", summary.MinVal, summary.MaxVal)
			return nil
		},
	}
}

func newChromsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chroms",
		Short: "List chromosomes in the container's B+ tree index",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openFromFlag()
			if err != nil {
				return err
			}
			defer closeFn()

			chroms, err := r.Chroms(context.Background())
			if err != nil {
				return err
			}
			for _, c := range chroms {
				fmt.Printf("%s\t%d\t%d\n", c.Name, c.ID, c.Size)
			}
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	var chrom string
	var start, end uint32
	var maxItems int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query features or values within a genomic interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openFromFlag()
			if err != nil {
				return err
			}
			defer closeFn()

			opts := bigbin.QueryOptions{MaxItems: maxItems, Context: context.Background()}
			if r.Header.Kind == bigbin.BigBed {
				records, err := r.QueryFeatures(chrom, start, end, opts)
				if err != nil {
					return err
				}
				for _, rec := range records {
					fmt.Printf("%d\t%d\t%d\t%s\n", rec.ChromIx, rec.Start, rec.End, rec.Rest)
				}
				return nil
			}
			values, err := r.QueryValues(chrom, start, end, opts)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Printf("%d\t%d\t%g\n", v.Start, v.End, v.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chrom, "chrom", "", "chromosome name")
	cmd.Flags().Uint32Var(&start, "start", 0, "interval start")
	cmd.Flags().Uint32Var(&end, "end", 0, "interval end")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "stop after this many results (0 = unbounded)")
	_ = cmd.MarkFlagRequired("chrom")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newZoomCmd() *cobra.Command {
	var chrom string
	var start, end uint32
	var bins int

	cmd := &cobra.Command{
		Use:   "zoom",
		Short: "Print zoom-level summary values over an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openFromFlag()
			if err != nil {
				return err
			}
			defer closeFn()

			values, err := r.ZoomValues(chrom, start, end, bins, bigbin.ZoomMean)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Printf("%g\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chrom, "chrom", "", "chromosome name")
	cmd.Flags().Uint32Var(&start, "start", 0, "interval start")
	cmd.Flags().Uint32Var(&end, "end", 0, "interval end")
	cmd.Flags().IntVar(&bins, "bins", 100, "approximate number of bins to target")
	_ = cmd.MarkFlagRequired("chrom")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
