package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/endstop"
	"plcmotion/pkg/fb"
	"plcmotion/pkg/scheduler"
	"plcmotion/pkg/servo"
	"plcmotion/pkg/trace"
)

const demoFrequency = 100

type demoOptions struct {
	plot     string
	csv      string
	quiet    bool
	realtime bool
	maxTicks int
}

var demoOpts demoOptions

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a built-in motion demo on a simulated drive",
}

var demoMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Power on and run two absolute moves, the second buffered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := runMoveDemo(cmd.OutOrStdout(), demoOpts)
		if err != nil {
			return err
		}
		return writeDemoOutputs(cmd.OutOrStdout(), "move demo", samples, demoOpts)
	},
}

var demoHomingCmd = &cobra.Command{
	Use:   "homing",
	Short: "Power on and home with mode 7 against a simulated switch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := runHomingDemo(cmd.OutOrStdout(), demoOpts)
		if err != nil {
			return err
		}
		return writeDemoOutputs(cmd.OutOrStdout(), "homing demo", samples, demoOpts)
	},
}

func init() {
	for _, c := range []*cobra.Command{demoMoveCmd, demoHomingCmd} {
		c.Flags().StringVar(&demoOpts.plot, "plot", "", "write a PNG plot of the trace")
		c.Flags().StringVar(&demoOpts.csv, "csv", "", "write the trace as CSV")
		c.Flags().BoolVarP(&demoOpts.quiet, "quiet", "q", false, "print only milestones")
		c.Flags().BoolVar(&demoOpts.realtime, "realtime", false, "sleep one period per cycle")
		c.Flags().IntVar(&demoOpts.maxTicks, "max-ticks", 100000, "give up after this many cycles")
		demoCmd.AddCommand(c)
	}
}

// demoLoop is the cyclic task of a demo: one scheduler cycle, then the
// function blocks, then the printout.
type demoLoop struct {
	out   io.Writer
	opts  demoOptions
	sched *scheduler.Scheduler
	rec   *trace.Recorder

	readPos fb.ReadActualPosition
	readVel fb.ReadCommandVelocity
}

func newDemoLoop(out io.Writer, opts demoOptions, dev servo.Device) (*demoLoop, *axis.Axis, error) {
	sched := scheduler.New()
	if err := sched.SetFrequency(demoFrequency); err != nil {
		return nil, nil, err
	}
	a := sched.NewAxis(1, dev)
	d := &demoLoop{
		out:   out,
		opts:  opts,
		sched: sched,
		rec:   trace.NewRecorder(a, 1.0/demoFrequency, 0),
	}
	d.readPos = fb.ReadActualPosition{Axis: a}
	d.readPos.Enable = true
	d.readVel = fb.ReadCommandVelocity{Axis: a}
	d.readVel.Enable = true
	return d, a, nil
}

// run cycles until step reports done.
func (d *demoLoop) run(blocks []fb.Block, step func() bool) error {
	maxTicks := d.opts.maxTicks
	if maxTicks <= 0 {
		maxTicks = 100000
	}
	period := time.Second / demoFrequency
	for i := 0; i < maxTicks; i++ {
		d.sched.RunCycle()
		for _, b := range blocks {
			b.Call()
		}
		d.readPos.Call()
		d.readVel.Call()
		d.rec.Record(d.sched.Tick())

		if !d.opts.quiet {
			t := float64(i) / demoFrequency
			fmt.Fprintf(d.out, "time:%.8f,\tposition:%.8f,\tvelocity:%.8f\n", t, d.readPos.Position, d.readVel.Velocity)
		}
		if step() {
			return nil
		}
		if d.opts.realtime {
			time.Sleep(period)
		}
	}
	return fmt.Errorf("demo did not finish within %d cycles", maxTicks)
}

func (d *demoLoop) milestone(msg string) {
	fmt.Fprintln(d.out, msg)
}

func runMoveDemo(out io.Writer, opts demoOptions) ([]trace.Sample, error) {
	d, a, err := newDemoLoop(out, opts, nil)
	if err != nil {
		return nil, err
	}

	power := &fb.Power{Axis: a, Enable: true, EnablePositive: true, EnableNegative: true}
	move1 := &fb.MoveAbsolute{Axis: a, Position: 500}
	move1.Motion = fb.Motion{Velocity: 400, Acceleration: 500, Deceleration: 500}
	move2 := &fb.MoveAbsolute{Axis: a, Position: 1000, BufferMode: axis.Buffered}
	move2.Motion = fb.Motion{Velocity: 200, Acceleration: 300, Deceleration: 300}

	move1Done := false
	var failure error
	err = d.run([]fb.Block{power, move1, move2}, func() bool {
		if power.Error || move1.Error || move2.Error {
			failure = fmt.Errorf("demo failed: power %s, move1 %s, move2 %s",
				power.ErrorID.Name(), move1.ErrorID.Name(), move2.ErrorID.Name())
			return true
		}
		poweredOn := power.Status && power.Valid
		if poweredOn && !move1.Execute {
			d.milestone("axis poweron, moveAbs1 start")
			move1.Execute = true
		}
		if move1.Done && !move1Done {
			d.milestone("moveAbs1 complete, moveAbs2 start")
			move1Done = true
		}
		move2.Execute = move1.Busy || move1Done
		if move2.Done {
			d.milestone("moveAbs2 complete")
			return true
		}
		return false
	})
	if err == nil {
		err = failure
	}
	return d.rec.Samples(), err
}

// Homing demo switch: the drive encoder passes 50 turns of 8192 counts.
const demoSwitchRaw = 50 * 8192

func runHomingDemo(out io.Writer, opts demoOptions) ([]trace.Sample, error) {
	dev := servo.NewSim()
	d, a, err := newDemoLoop(out, opts, dev)
	if err != nil {
		return nil, err
	}

	bank := endstop.NewBank("demo")
	sw := endstop.PositionSwitch{Device: dev, Threshold: demoSwitchRaw}
	if err := bank.Add(endstop.New(endstop.EndstopConfig{Name: "home"}, sw.Triggered)); err != nil {
		return nil, err
	}
	cfg := axis.DefaultConfig()
	cfg.Homing = axis.HomingInfo{
		Signal:        bank,
		Mode:          axis.HomingMode7,
		VelSearch:     20,
		VelRegression: 1,
		Acc:           50,
	}
	if err := d.sched.SetAxisConfig(a, cfg); err != nil {
		return nil, fmt.Errorf("homing config: %w", err)
	}

	power := &fb.Power{Axis: a, Enable: true, EnablePositive: true, EnableNegative: true}
	home := &fb.Home{Axis: a, Position: 200}

	var failure error
	err = d.run([]fb.Block{power, home}, func() bool {
		if power.Error || home.Error {
			failure = fmt.Errorf("demo failed: power %s, home %s", power.ErrorID.Name(), home.ErrorID.Name())
			return true
		}
		if power.Status && power.Valid && !home.Execute {
			d.milestone("axis poweron, homing start")
			home.Execute = true
		}
		if home.Done {
			d.milestone("homing complete")
			return true
		}
		return false
	})
	if err == nil {
		err = failure
	}
	return d.rec.Samples(), err
}

func writeDemoOutputs(out io.Writer, title string, samples []trace.Sample, opts demoOptions) error {
	sum := trace.Summarize(samples, 1e-3)
	fmt.Fprintf(out, "%d cycles, %.2f s, travel %.3f, peak velocity %.3f, max lag %.3g\n",
		sum.Count, sum.Duration, sum.Travel, sum.MaxVel, sum.MaxLag)

	if opts.csv != "" {
		f, err := os.Create(opts.csv)
		if err != nil {
			return err
		}
		if err := trace.WriteCSV(f, samples); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.csv)
	}
	if opts.plot != "" {
		if err := trace.SavePNG(opts.plot, samples, trace.PlotOptions{Title: title}); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.plot)
	}
	return nil
}
