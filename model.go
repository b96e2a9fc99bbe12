package colorgan_go

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LdDl/colorgan-go/colorspace"
	"github.com/LdDl/colorgan-go/datasets"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

const (
	colorChannels = 3
	grayChannels  = 1
)

// Model Colorization GAN: U-Net generator conditioned on grayscale image and PatchGAN discriminator judging (grayscale, color) pairs.
//
// Discriminator lives on its own graph and is trained on real and generated pairs.
// Generator lives on GAN graph together with copy of discriminator sharing values with the original one.
//
type Model struct {
	Name     string
	opts     *Options
	space    colorspace.Space
	topology Topology
	dir      string

	runID   string
	step    int64
	epoch   int
	history LossHistory

	ganGraph      *gorgonia.ExprGraph
	disGraph      *gorgonia.ExprGraph
	generator     *GeneratorNet
	discriminator *DiscriminatorNet
	gan           *GAN

	genInput     *gorgonia.Node
	genTarget    *gorgonia.Node
	disRealInput *gorgonia.Node
	disFakeInput *gorgonia.Node

	generatedVal gorgonia.Value
	genLossVal   gorgonia.Value
	disRealValue gorgonia.Value
	disFakeValue gorgonia.Value

	samplerVM gorgonia.VM
	genVM     gorgonia.VM
	disVM     gorgonia.VM
	genSolver gorgonia.Solver
	disSolver gorgonia.Solver
}

// NewModel Defines both graphs, tape machines and solvers for provided options
func NewModel(opts *Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid options")
	}
	space, err := opts.Space()
	if err != nil {
		return nil, err
	}
	topology, err := opts.NetworkTopology()
	if err != nil {
		return nil, err
	}
	m := &Model{
		Name:     opts.ModelName(),
		opts:     opts,
		space:    space,
		topology: topology,
		dir:      filepath.Join(opts.CheckpointPath, opts.ModelName()),
		runID:    uuid.NewString(),
		ganGraph: gorgonia.NewGraph(),
		disGraph: gorgonia.NewGraph(),
	}
	batchSize, size := opts.BatchSize, topology.ImageSize

	// Discriminator must be feedforwarded before GAN copies it
	if err := m.defineDiscriminator(batchSize, size); err != nil {
		return nil, err
	}
	if err := m.defineGenerator(batchSize, size); err != nil {
		m.Close()
		return nil, err
	}
	m.genSolver = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(batchSize)), gorgonia.WithLearnRate(opts.LearningRate), gorgonia.WithBeta1(opts.Beta1))
	m.disSolver = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(batchSize)), gorgonia.WithLearnRate(opts.LearningRate), gorgonia.WithBeta1(opts.Beta1))
	return m, nil
}

func (m *Model) defineDiscriminator(batchSize, size int) error {
	var err error
	m.discriminator, err = DefineDiscriminator(m.disGraph, "discriminator", grayChannels+colorChannels, m.topology.Discriminator)
	if err != nil {
		return errors.Wrap(err, "Can't define Discriminator")
	}
	m.disRealInput = gorgonia.NewTensor(m.disGraph, Dtype, 4, gorgonia.WithShape(batchSize, grayChannels+colorChannels, size, size), gorgonia.WithName("discriminator_real_input"))
	m.disFakeInput = gorgonia.NewTensor(m.disGraph, Dtype, 4, gorgonia.WithShape(batchSize, grayChannels+colorChannels, size, size), gorgonia.WithName("discriminator_fake_input"))
	if err := m.discriminator.Fwd(m.disRealInput); err != nil {
		return errors.Wrap(err, "Can't feedforward real pairs")
	}
	fakeLogits, err := m.discriminator.Reuse(m.disFakeInput, "discriminator_fake")
	if err != nil {
		return errors.Wrap(err, "Can't feedforward fake pairs")
	}

	// Real pairs are labeled with smoothed ones, fake pairs with zeros
	realLabels := constantLike(m.discriminator.Out(), "discriminator_real_labels", m.opts.RealLabel)
	fakeLabels := constantLike(fakeLogits, "discriminator_fake_labels", 0.0)
	lossReal, err := SigmoidCrossEntropyWithLogits(m.discriminator.Out(), realLabels)
	if err != nil {
		return errors.Wrap(err, "Can't define Discriminator's loss on real pairs")
	}
	gorgonia.WithName("discriminator_loss_real")(lossReal)
	lossFake, err := SigmoidCrossEntropyWithLogits(fakeLogits, fakeLabels)
	if err != nil {
		return errors.Wrap(err, "Can't define Discriminator's loss on fake pairs")
	}
	gorgonia.WithName("discriminator_loss_fake")(lossFake)
	loss, err := gorgonia.Add(lossReal, lossFake)
	if err != nil {
		return errors.Wrap(err, "Can't define Discriminator's loss")
	}
	gorgonia.WithName("discriminator_loss")(loss)
	if _, err = gorgonia.Grad(loss, m.discriminator.Learnables()...); err != nil {
		return errors.Wrap(err, "Can't define gradients for Discriminator")
	}
	gorgonia.Read(lossReal, &m.disRealValue)
	gorgonia.Read(lossFake, &m.disFakeValue)
	m.disVM = gorgonia.NewTapeMachine(m.disGraph, gorgonia.BindDualValues(m.discriminator.Learnables()...))
	return nil
}

func (m *Model) defineGenerator(batchSize, size int) error {
	var err error
	m.generator, err = DefineGenerator(m.ganGraph, "generator", grayChannels, colorChannels, m.topology.Encoder, m.topology.Decoder)
	if err != nil {
		return errors.Wrap(err, "Can't define Generator")
	}
	m.genInput = gorgonia.NewTensor(m.ganGraph, Dtype, 4, gorgonia.WithShape(batchSize, grayChannels, size, size), gorgonia.WithName("generator_input"))
	if err := m.generator.Fwd(m.genInput); err != nil {
		return errors.Wrap(err, "Can't feedforward Generator")
	}
	gorgonia.Read(m.generator.Out(), &m.generatedVal)
	// Machine is compiled before GAN part and gradients are defined, so it does forward pass of Generator only
	m.samplerVM = gorgonia.NewTapeMachine(m.ganGraph)

	m.gan, err = NewGAN(m.ganGraph, m.generator, m.discriminator)
	if err != nil {
		return errors.Wrap(err, "Can't define GAN")
	}
	if err := m.gan.Fwd(m.genInput); err != nil {
		return errors.Wrap(err, "Can't feedforward GAN")
	}
	m.genTarget = gorgonia.NewTensor(m.ganGraph, Dtype, 4, gorgonia.WithShape(batchSize, colorChannels, size, size), gorgonia.WithName("generator_target"))

	// Generator wants its pairs to be labeled as real ones
	labels := constantLike(m.gan.Out(), "gan_labels", 1.0)
	lossGAN, err := SigmoidCrossEntropyWithLogits(m.gan.Out(), labels)
	if err != nil {
		return errors.Wrap(err, "Can't define adversarial loss of Generator")
	}
	gorgonia.WithName("generator_loss_gan")(lossGAN)
	lossL1, err := L1Loss(m.generator.Out(), m.genTarget)
	if err != nil {
		return errors.Wrap(err, "Can't define L1 loss of Generator")
	}
	gorgonia.WithName("generator_loss_l1")(lossL1)
	weightedL1, err := gorgonia.Mul(lossL1, gorgonia.NewConstant(m.opts.L1Weight, gorgonia.WithName("l1_weight")))
	if err != nil {
		return errors.Wrap(err, "Can't weight L1 loss of Generator")
	}
	loss, err := gorgonia.Add(lossGAN, weightedL1)
	if err != nil {
		return errors.Wrap(err, "Can't define Generator's loss")
	}
	gorgonia.WithName("generator_loss")(loss)
	if _, err = gorgonia.Grad(loss, m.gan.Learnables()...); err != nil {
		return errors.Wrap(err, "Can't define gradients for GAN")
	}
	gorgonia.Read(loss, &m.genLossVal)
	m.genVM = gorgonia.NewTapeMachine(m.ganGraph, gorgonia.BindDualValues(m.gan.Learnables()...))
	return nil
}

// Close Releases tape machines
func (m *Model) Close() {
	for _, vm := range []gorgonia.VM{m.samplerVM, m.genVM, m.disVM} {
		if vm != nil {
			vm.Close()
		}
	}
}

// Step Returns number of done training steps
func (m *Model) Step() int64 {
	return m.step
}

// Epoch Returns number of done epochs
func (m *Model) Epoch() int {
	return m.epoch
}

// History Returns losses recorded at logging steps
func (m *Model) History() LossHistory {
	return m.history
}

// Dir Returns directory of checkpoints
func (m *Model) Dir() string {
	return m.dir
}

// Sample Colorizes batch of grayscale images
//
// gray - generator's input [batch, 1, size, size] normalized to [-1, 1]
// Returns generated batch [batch, 3, size, size] normalized to [-1, 1]
//
func (m *Model) Sample(gray *tensor.Dense) (*tensor.Dense, error) {
	if !gray.Shape().Eq(m.genInput.Shape()) {
		return nil, fmt.Errorf("Generator's input must have shape %v, but got %v", m.genInput.Shape(), gray.Shape())
	}
	if err := gorgonia.Let(m.genInput, gray); err != nil {
		return nil, errors.Wrap(err, "Can't set Generator's input")
	}
	defer m.samplerVM.Reset()
	if err := m.samplerVM.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't do forward pass of Generator")
	}
	return cloneDense(m.generatedVal)
}

// trainStep Does one adversarial iteration: Discriminator on real and generated pairs, then Generator.
// Weights are updated only when train is set. Returns losses and images generated for Discriminator
func (m *Model) trainStep(batch *TrainSet, train bool) (LossRecord, *tensor.Dense, error) {
	rec := LossRecord{}
	fake, err := m.Sample(batch.Gray)
	if err != nil {
		return rec, nil, err
	}
	realPairs, err := tensor.Concat(1, batch.Gray, batch.Target)
	if err != nil {
		return rec, nil, errors.Wrap(err, "Can't concatenate real pairs")
	}
	fakePairs, err := tensor.Concat(1, batch.Gray, fake)
	if err != nil {
		return rec, nil, errors.Wrap(err, "Can't concatenate fake pairs")
	}

	if err := gorgonia.Let(m.disRealInput, realPairs); err != nil {
		return rec, nil, errors.Wrap(err, "Can't set real pairs")
	}
	if err := gorgonia.Let(m.disFakeInput, fakePairs); err != nil {
		return rec, nil, errors.Wrap(err, "Can't set fake pairs")
	}
	if err := m.disVM.RunAll(); err != nil {
		m.disVM.Reset()
		return rec, nil, errors.Wrap(err, "Can't do Discriminator's step")
	}
	if train {
		if err := m.disSolver.Step(gorgonia.NodesToValueGrads(m.discriminator.Learnables())); err != nil {
			m.disVM.Reset()
			return rec, nil, errors.Wrap(err, "Can't update Discriminator")
		}
	}
	m.disVM.Reset()
	if rec.DisReal, err = scalarValue(m.disRealValue); err != nil {
		return rec, nil, errors.Wrap(err, "Can't read Discriminator's loss on real pairs")
	}
	if rec.DisFake, err = scalarValue(m.disFakeValue); err != nil {
		return rec, nil, errors.Wrap(err, "Can't read Discriminator's loss on fake pairs")
	}

	if err := gorgonia.Let(m.genInput, batch.Gray); err != nil {
		return rec, nil, errors.Wrap(err, "Can't set Generator's input")
	}
	if err := gorgonia.Let(m.genTarget, batch.Target); err != nil {
		return rec, nil, errors.Wrap(err, "Can't set Generator's target")
	}
	if err := m.genVM.RunAll(); err != nil {
		m.genVM.Reset()
		return rec, nil, errors.Wrap(err, "Can't do Generator's step")
	}
	if train {
		if err := m.genSolver.Step(gorgonia.NodesToValueGrads(m.gan.GeneratorLearnables())); err != nil {
			m.genVM.Reset()
			return rec, nil, errors.Wrap(err, "Can't update Generator")
		}
	}
	m.genVM.Reset()
	if rec.Gen, err = scalarValue(m.genLossVal); err != nil {
		return rec, nil, errors.Wrap(err, "Can't read Generator's loss")
	}
	return rec, fake, nil
}

// Train Trains model on training split of dataset, resuming from the latest checkpoint when there is one.
// Cancelling ctx stops training after the current batch: checkpoint is saved and ctx error is returned
func (m *Model) Train(ctx context.Context) error {
	src, err := m.openDataset(ctx, true)
	if err != nil {
		return err
	}
	loaded, err := m.Load()
	if err != nil {
		return err
	}
	if loaded {
		klog.Infof("Resuming %s from step %d (epoch %d)", m.Name, m.step, m.epoch)
	}
	if err := os.MkdirAll(m.dir, 0o777); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't create checkpoint directory '%s'", m.dir))
	}
	if err := m.opts.Save(filepath.Join(m.dir, OptionsFile)); err != nil {
		return err
	}
	klog.Infof("Training %s on %s (%s images) in %s space", m.Name, src.Name(), humanize.Comma(int64(src.Len())), m.space)

	for m.epoch < m.opts.Epochs {
		if err := m.trainEpoch(ctx, src); err != nil {
			if ctx.Err() != nil {
				klog.Warningf("Training is interrupted at step %d, saving checkpoint", m.step)
				if _, saveErr := m.Save(); saveErr != nil {
					klog.Errorf("Can't save checkpoint: %v", saveErr)
				}
				return ctx.Err()
			}
			return err
		}
		m.epoch++
		if _, err := m.Save(); err != nil {
			return err
		}
	}
	if len(m.history) > 0 {
		fname := filepath.Join(m.dir, "losses.png")
		if err := PlotLosses(m.history, fname); err != nil {
			klog.Warningf("Can't plot losses: %v", err)
		}
	}
	return nil
}

func (m *Model) trainEpoch(ctx context.Context, src datasets.Source) error {
	it, err := datasets.NewIterator(src, datasets.IteratorConfig{
		BatchSize: m.opts.BatchSize,
		Shuffle:   true,
		Augment:   m.opts.Augment,
		Workers:   m.opts.Workers,
		Seed:      m.opts.Seed + int64(m.epoch),
	})
	if err != nil {
		return errors.Wrap(err, "Can't create iterator")
	}
	var bar *progressbar.ProgressBar
	if m.opts.Progress {
		bar = progressbar.NewOptions(it.NumBatches(),
			progressbar.OptionSetDescription(fmt.Sprintf("Epoch %d/%d", m.epoch+1, m.opts.Epochs)),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
		)
		defer bar.Close()
	}
	st := time.Now()
	for it.Next(ctx) {
		batch, err := NewTrainSet(it.Batch(), m.space)
		if err != nil {
			return err
		}
		rec, fake, err := m.trainStep(batch, true)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Step %d", m.step))
		}
		m.step++
		rec.Step, rec.Epoch = m.step, m.epoch
		if bar != nil {
			_ = bar.Add(1)
		}
		if m.opts.LogInterval > 0 && m.step%int64(m.opts.LogInterval) == 0 {
			// Losses of the step above are computed before updates, so re-evaluate the batch with both networks updated
			rec, _, err = m.trainStep(batch, false)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't evaluate losses at step %d", m.step))
			}
			rec.Step, rec.Epoch = m.step, m.epoch
			m.history = append(m.history, rec)
			klog.V(1).Infof("Step %d: D(real)=%.4f D(fake)=%.4f G=%.4f [%v]", m.step, rec.DisReal, rec.DisFake, rec.Gen, time.Since(st))
			st = time.Now()
		}
		if m.opts.SampleInterval > 0 && m.step%int64(m.opts.SampleInterval) == 0 {
			fname := filepath.Join(m.samplesDir(), fmt.Sprintf("train-%d.png", m.step))
			if err := saveSamples(fname, batch, fake, m.space); err != nil {
				klog.Warningf("Can't save samples: %v", err)
			}
		}
		if m.opts.SaveInterval > 0 && m.step%int64(m.opts.SaveInterval) == 0 {
			if _, err := m.Save(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	mean := m.history.ForEpoch(m.epoch).Mean()
	klog.Infof("Epoch %d/%d done at step %d: D(real)=%.4f D(fake)=%.4f G=%.4f", m.epoch+1, m.opts.Epochs, m.step, mean.DisReal, mean.DisFake, mean.Gen)
	return nil
}

// TestReport Mean values over test split
type TestReport struct {
	Batches  int
	DisReal  float64
	DisFake  float64
	Gen      float64
	Accuracy float64
}

// Test Evaluates the latest checkpoint on testing split of dataset without updating weights
func (m *Model) Test(ctx context.Context) (*TestReport, error) {
	loaded, err := m.Load()
	if err != nil {
		return nil, err
	}
	if !loaded {
		return nil, fmt.Errorf("No checkpoint found in '%s'", m.dir)
	}
	src, err := m.openDataset(ctx, false)
	if err != nil {
		return nil, err
	}
	it, err := datasets.NewIterator(src, datasets.IteratorConfig{
		BatchSize: m.opts.BatchSize,
		Workers:   m.opts.Workers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Can't create iterator")
	}
	klog.Infof("Testing %s (step %d) on %s", m.Name, m.step, src.Name())
	report := &TestReport{}
	for it.Next(ctx) {
		batch, err := NewTrainSet(it.Batch(), m.space)
		if err != nil {
			return nil, err
		}
		rec, fake, err := m.trainStep(batch, false)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Batch %d", report.Batches))
		}
		fakeColor, err := colorspace.Postprocess(fake, m.space)
		if err != nil {
			return nil, errors.Wrap(err, "Can't denormalize generated batch")
		}
		acc, err := PixelwiseAccuracy(batch.Color, fakeColor, m.space, m.opts.AccuracyThreshold)
		if err != nil {
			return nil, errors.Wrap(err, "Can't evaluate accuracy")
		}
		if report.Batches < m.opts.TestSamples {
			fname := filepath.Join(m.samplesDir(), fmt.Sprintf("test-%d-%d.png", m.step, report.Batches))
			if err := saveSamples(fname, batch, fake, m.space); err != nil {
				klog.Warningf("Can't save samples: %v", err)
			}
		}
		report.Batches++
		report.DisReal += rec.DisReal
		report.DisFake += rec.DisFake
		report.Gen += rec.Gen
		report.Accuracy += acc
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	if report.Batches == 0 {
		return nil, fmt.Errorf("No batches in '%s'", src.Name())
	}
	n := float64(report.Batches)
	report.DisReal /= n
	report.DisFake /= n
	report.Gen /= n
	report.Accuracy /= n
	klog.Infof("Test of %s: D(real)=%.4f D(fake)=%.4f G=%.4f accuracy=%.2f%%", m.Name, report.DisReal, report.DisFake, report.Gen, 100*report.Accuracy)
	return report, nil
}

func (m *Model) openDataset(ctx context.Context, training bool) (datasets.Source, error) {
	src, err := datasets.New(ctx, m.opts.Dataset, m.opts.DatasetPath, training, m.opts.Download)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open dataset")
	}
	if src.Size() != m.topology.ImageSize {
		return nil, fmt.Errorf("Dataset '%s' has %dx%d images, but topology expects %dx%d", src.Name(), src.Size(), src.Size(), m.topology.ImageSize, m.topology.ImageSize)
	}
	return src, nil
}

func (m *Model) samplesDir() string {
	return filepath.Join(m.opts.SamplesPath, m.Name)
}

// params Returns learnables of both networks keyed by stable names
func (m *Model) params() map[string]*gorgonia.Node {
	params := m.generator.Params()
	for name, n := range m.discriminator.Params() {
		params[name] = n
	}
	return params
}

// Save Writes checkpoint tagged with the current step. Returns path to it
func (m *Model) Save() (string, error) {
	vars, err := captureVariables(m.params())
	if err != nil {
		return "", errors.Wrap(err, "Can't capture variables")
	}
	ckpt := &Checkpoint{
		Step:      m.step,
		Epoch:     m.epoch,
		RunID:     m.runID,
		Created:   time.Now(),
		History:   m.history,
		Variables: vars,
	}
	fpath, err := SaveCheckpoint(m.dir, m.Name, ckpt, m.opts.KeepCheckpoints)
	if err != nil {
		return "", err
	}
	klog.V(1).Infof("Saved checkpoint '%s'", fpath)
	return fpath, nil
}

// Load Restores the latest checkpoint. Returns false when there is no checkpoint
func (m *Model) Load() (bool, error) {
	fpath, err := LatestCheckpoint(m.dir)
	if err != nil {
		return false, err
	}
	if fpath == "" {
		return false, nil
	}
	ckpt, err := ReadCheckpoint(fpath)
	if err != nil {
		return false, err
	}
	if err := restoreVariables(m.params(), ckpt.Variables); err != nil {
		return false, errors.Wrap(err, fmt.Sprintf("Can't restore checkpoint '%s'", fpath))
	}
	m.step = ckpt.Step
	m.epoch = ckpt.Epoch
	m.history = ckpt.History
	if ckpt.RunID != "" {
		m.runID = ckpt.RunID
	}
	klog.V(1).Infof("Loaded checkpoint '%s'", fpath)
	return true, nil
}

// Summary Returns number of parameters per network
func (m *Model) Summary() string {
	count := func(nodes gorgonia.Nodes) int64 {
		total := 0
		for _, n := range nodes {
			total += n.Shape().TotalSize()
		}
		return int64(total)
	}
	gen := count(m.generator.Learnables())
	dis := count(m.discriminator.Learnables())
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s, %dx%d, batch %d)\n", m.Name, m.space, m.topology.ImageSize, m.topology.ImageSize, m.opts.BatchSize)
	fmt.Fprintf(&sb, "\tGenerator: %d layers, %s parameters\n", len(m.generator.Layers()), humanize.Comma(gen))
	fmt.Fprintf(&sb, "\tDiscriminator: %d layers, %s parameters\n", len(m.discriminator.private.Layers), humanize.Comma(dis))
	fmt.Fprintf(&sb, "\tTotal: %s parameters", humanize.Comma(gen+dis))
	return sb.String()
}
