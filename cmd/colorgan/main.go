// colorgan trains and tests colorization GANs on CIFAR-10 and Places365.
//
// Options come from defaults, then from -config YAML file, then from flags given explicitly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	colorgan "github.com/LdDl/colorgan-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var flagConfig = flag.String("config", "", "YAML file with options. Flags given explicitly override its values.")

func main() {
	klog.InitFlags(nil)
	opts := colorgan.DefaultOptions()
	bindFlags(flag.CommandLine, opts)
	flag.Parse()

	opts, err := resolveOptions(flag.CommandLine, opts, *flagConfig)
	if err != nil {
		klog.Exitf("%+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := colorgan.NewModel(opts)
	if err != nil {
		klog.Exitf("%+v", err)
	}
	defer model.Close()
	klog.Infof("\n%s", model.Summary())

	switch opts.Mode {
	case colorgan.ModeTrain:
		if err := model.Train(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				klog.Warningf("Training cancelled at step %d", model.Step())
				return
			}
			klog.Exitf("%+v", err)
		}
		klog.Infof("Training finished at step %d, checkpoints are in %s", model.Step(), model.Dir())
	case colorgan.ModeTest:
		report, err := model.Test(ctx)
		if err != nil {
			klog.Exitf("%+v", err)
		}
		fmt.Printf("Batches: %d\nD(real): %.4f\nD(fake): %.4f\nG: %.4f\nAccuracy: %.2f%%\n",
			report.Batches, report.DisReal, report.DisFake, report.Gen, 100*report.Accuracy)
	}
}

// resolveOptions loads config file, if any, and applies flags set on the command line on top of it.
func resolveOptions(fs *flag.FlagSet, opts *colorgan.Options, config string) (*colorgan.Options, error) {
	if config == "" {
		return opts, nil
	}
	fileOpts, err := colorgan.LoadOptions(config)
	if err != nil {
		return nil, err
	}
	overrides := flag.NewFlagSet("overrides", flag.ContinueOnError)
	bindFlags(overrides, fileOpts)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr != nil || overrides.Lookup(f.Name) == nil {
			return
		}
		if err := overrides.Set(f.Name, f.Value.String()); err != nil {
			setErr = errors.Wrapf(err, "Can't apply flag -%s", f.Name)
		}
	})
	if setErr != nil {
		return nil, setErr
	}
	return fileOpts, nil
}

// bindFlags registers flag for every option with the current value as default.
func bindFlags(fs *flag.FlagSet, opts *colorgan.Options) {
	fs.StringVar(&opts.Mode, "mode", opts.Mode, "Either \"train\" or \"test\".")
	fs.Int64Var(&opts.Seed, "seed", opts.Seed, "Seed of data shuffling and augmentation.")
	fs.StringVar(&opts.Dataset, "dataset", opts.Dataset, "Dataset: \"cifar10\" or \"places365\".")
	fs.StringVar(&opts.DatasetPath, "dataset_path", opts.DatasetPath, "Directory of the dataset.")
	fs.BoolVar(&opts.Download, "download", opts.Download, "Download CIFAR-10 when it's missing.")
	fs.StringVar(&opts.CheckpointPath, "checkpoint_path", opts.CheckpointPath, "Directory for checkpoints. Every model gets its own subdirectory.")
	fs.StringVar(&opts.SamplesPath, "samples_path", opts.SamplesPath, "Directory for sample grids.")
	fs.StringVar(&opts.ColorSpace, "color_space", opts.ColorSpace, "Color space of generated images: \"rgb\" or \"lab\".")
	fs.IntVar(&opts.Epochs, "epochs", opts.Epochs, "Number of epochs to train.")
	fs.IntVar(&opts.BatchSize, "batch_size", opts.BatchSize, "Batch size.")
	fs.Float64Var(&opts.LearningRate, "lr", opts.LearningRate, "Learning rate of Adam.")
	fs.Float64Var(&opts.Beta1, "beta1", opts.Beta1, "Beta1 of Adam.")
	fs.Float64Var(&opts.L1Weight, "l1_weight", opts.L1Weight, "Weight of L1 term of generator's loss.")
	fs.Float64Var(&opts.RealLabel, "real_label", opts.RealLabel, "Label of real pairs in discriminator's loss.")
	fs.BoolVar(&opts.Augment, "augment", opts.Augment, "Flip training images horizontally at random.")
	fs.Float64Var(&opts.AccuracyThreshold, "acc_thresh", opts.AccuracyThreshold, "Threshold of pixelwise accuracy, in L units.")
	fs.IntVar(&opts.LogInterval, "log_interval", opts.LogInterval, "Record losses every n steps.")
	fs.IntVar(&opts.SampleInterval, "sample_interval", opts.SampleInterval, "Write sample grid every n steps. 0 disables it.")
	fs.IntVar(&opts.SaveInterval, "save_interval", opts.SaveInterval, "Save checkpoint every n steps. Checkpoints are saved at the end of every epoch too.")
	fs.IntVar(&opts.KeepCheckpoints, "keep_checkpoints", opts.KeepCheckpoints, "Number of checkpoints to keep.")
	fs.IntVar(&opts.TestSamples, "test_samples", opts.TestSamples, "Number of sample grids written by test.")
	fs.IntVar(&opts.Workers, "workers", opts.Workers, "Workers reading images. 0 means number of CPUs.")
	fs.BoolVar(&opts.Progress, "progress", opts.Progress, "Show progress bar.")
}
