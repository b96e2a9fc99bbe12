// colorgan-checkpoints reports on checkpoints written by colorgan.
//
// Usage: colorgan-checkpoints [flags] <checkpoint directory or .ckpt file>
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	colorgan "github.com/LdDl/colorgan-go"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", true, "Display a summary of the checkpoint: step, epoch, run id and model sizes.")
	flagVars    = flag.Bool("vars", false, "Lists the variables with their shapes and statistics.")
	flagFilter  = flag.String("filter", "", "Only list variables whose names start with the prefix, e.g. \"generator\".")
	flagLosses  = flag.Bool("losses", false, "Lists the losses recorded at logging steps.")
	flagPlot    = flag.String("plot", "", "Writes chart of recorded losses to the given PNG file.")
	flagAll     = flag.Bool("all", false, "Summarize every retained checkpoint of the directory instead of the latest one.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Exitf("Missing checkpoint directory to read from. See 'colorgan-checkpoints -help'")
	}
	if len(args) > 1 {
		klog.Exitf("Too many arguments. See 'colorgan-checkpoints -help'.")
	}
	paths, err := checkpointPaths(args[0], *flagAll)
	if err != nil {
		klog.Exitf("%+v", err)
	}
	if err := report(paths); err != nil {
		klog.Exitf("%+v", err)
	}
}

// checkpointPaths resolves argument to checkpoint files, oldest first.
func checkpointPaths(arg string, all bool) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{arg}, nil
	}
	state, err := colorgan.ReadCheckpointState(arg)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Latest == "" {
		return nil, fmt.Errorf("No checkpoints in %q", arg)
	}
	if !all {
		return []string{filepath.Join(arg, state.Latest)}, nil
	}
	paths := make([]string, len(state.All))
	for i, name := range state.All {
		paths[i] = filepath.Join(arg, name)
	}
	return paths, nil
}

func report(paths []string) error {
	ckpts := make([]*colorgan.Checkpoint, len(paths))
	for i, p := range paths {
		ckpt, err := colorgan.ReadCheckpoint(p)
		if err != nil {
			return err
		}
		ckpts[i] = ckpt
	}
	if *flagSummary {
		Summary(ckpts, paths)
	}
	latest := ckpts[len(ckpts)-1]
	if *flagVars {
		ListVariables(latest, *flagFilter)
	}
	if *flagLosses {
		ListLosses(latest)
	}
	if *flagPlot != "" {
		if err := colorgan.PlotLosses(latest.History, *flagPlot); err != nil {
			return err
		}
		fmt.Printf("Losses chart saved to %s\n", *flagPlot)
	}
	return nil
}

// Summary prints one column per checkpoint.
func Summary(ckpts []*colorgan.Checkpoint, paths []string) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(false)
	rows := [][]string{{"checkpoint"}, {"global_step"}, {"epoch"}, {"run id"}, {"created"}, {"# variables"}, {"# parameters"}, {"# bytes"}}
	for i, ckpt := range ckpts {
		numParams := ckpt.NumParameters()
		rows[0] = append(rows[0], filepath.Base(paths[i]))
		rows[1] = append(rows[1], humanize.Comma(ckpt.Step))
		rows[2] = append(rows[2], humanize.Comma(int64(ckpt.Epoch)))
		rows[3] = append(rows[3], ckpt.RunID)
		rows[4] = append(rows[4], humanize.Time(ckpt.Created))
		rows[5] = append(rows[5], humanize.Comma(int64(len(ckpt.Variables))))
		rows[6] = append(rows[6], humanize.Comma(int64(numParams)))
		rows[7] = append(rows[7], humanize.Bytes(uint64(8*numParams)))
	}
	for _, row := range rows {
		table.Row(row...)
	}
	fmt.Println(table.Render())
}

// ListVariables lists variables with their shape, MAV (mean absolute value), RMS (root-mean-square) and MaxAV (max absolute value).
func ListVariables(ckpt *colorgan.Checkpoint, prefix string) {
	fmt.Println(titleStyle.Render("Variables"))
	table := newPlainTable(true)
	table.Row("Name", "Shape", "Size", "Bytes", "MAV", "RMS", "MaxAV")
	for _, name := range ckpt.VariableNames() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		v := ckpt.Variables[name]
		mav, rms, maxAV := stats(v.Data)
		table.Row(name, fmt.Sprintf("%v", v.Shape),
			humanize.Comma(int64(len(v.Data))),
			humanize.Bytes(uint64(8*len(v.Data))),
			fmt.Sprintf("%.3g", mav), fmt.Sprintf("%.3g", rms), fmt.Sprintf("%.3g", maxAV))
	}
	fmt.Println(table.Render())
}

// ListLosses lists recorded losses.
func ListLosses(ckpt *colorgan.Checkpoint) {
	fmt.Println(titleStyle.Render("Losses"))
	table := newPlainTable(true)
	table.Row("Step", "Epoch", "D(real)", "D(fake)", "G")
	for _, r := range ckpt.History {
		table.Row(humanize.Comma(r.Step), fmt.Sprint(r.Epoch),
			fmt.Sprintf("%.4f", r.DisReal), fmt.Sprintf("%.4f", r.DisFake), fmt.Sprintf("%.4f", r.Gen))
	}
	fmt.Println(table.Render())
}

func stats(data []float64) (mav, rms, maxAV float64) {
	if len(data) == 0 {
		return
	}
	for _, v := range data {
		a := math.Abs(v)
		mav += a
		rms += v * v
		maxAV = math.Max(maxAV, a)
	}
	n := float64(len(data))
	return mav / n, math.Sqrt(rms / n), maxAV
}
