// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"

	nl "github.com/mlnoga/framecal/internal"
	"github.com/mlnoga/framecal/internal/config"
	"github.com/mlnoga/framecal/internal/fits"
	"github.com/mlnoga/framecal/internal/ops"
	"github.com/mlnoga/framecal/internal/ops/pre"
	"github.com/mlnoga/framecal/internal/ops/stretch"
	"github.com/mlnoga/framecal/internal/rest"
	"github.com/mlnoga/framecal/internal/stats"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")

var cfg = flag.String("config", "", "read correction parameters from YAML `file`; flags given explicitly take precedence")
var out = flag.String("out", "", "save corrected frames with given filename pattern, e.g. `out%04d.png`. Suffix selects FITS, PNG, TIFF or JPEG")
var palette = flag.String("palette", "", "false color palette for PNG, TIFF and JPEG output, one of gray, heat, ice")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var maxThreads = flag.Int("maxThreads", 0, "maximum number of frames processed concurrently, 0=auto from cores and memory")

var bits = flag.Int("bits", 8, "bit depth of input frames for level adjustment")
var flat = flag.String("flat", "", "apply flat field built from reference `file`")
var deinterlace = flag.String("deinterlace", "none", "deinterlace mode, one of none, odd, even, blend")

var lvMin = flag.Float64("lvMin", 0, "levels: input level mapped to black. Requires lvGamma and lvMax")
var lvGamma = flag.Float64("lvGamma", 1, "levels: gamma exponent. Requires lvMin and lvMax")
var lvMax = flag.Float64("lvMax", 255, "levels: input level mapped to white. Requires lvMin and lvGamma")

var brightness = flag.Float64("brightness", 0, "brightness offset in [-255,255], 0=no op")
var contrast = flag.Float64("contrast", 0, "contrast in [-255,255], 0=no op")

var gamma = flag.Float64("gamma", 1, "apply gamma between black and white point, 1=no op")
var black = flag.Float64("black", 0, "black point for gamma")
var white = flag.Float64("white", -1, "white point for gamma, -1=maximum level for bit depth")

var addr = flag.String("addr", ":8080", "listen address for the REST server")
var chroot = flag.String("chroot", "", "chroot to given `directory` before serving")
var setuid = flag.Int("setuid", -1, "change to given user ID before serving, -1=no change")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Framecal Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (correct|flat|stats|demo|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  correct Deinterlace, flat-field, level, brightness/contrast and gamma correct input frames
  flat    Build a flat field from the given reference frame and report its average
  stats   Show input frame statistics
  demo    Apply levels 100, 1.2, 240 to a gradient and save the result
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" && !strings.Contains(*out, "%") {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	c := ops.NewContext(logWriter)
	c.AllowAbs = true // only the REST server is restricted to the working directory tree
	if *maxThreads > 0 {
		c.MaxThreads = *maxThreads
	}

	var err error
	switch args[0] {
	case "correct":
		err = cmdCorrect(args[1:], c)

	case "flat":
		err = cmdFlat(args[1:], c)

	case "stats":
		err = cmdStats(args[1:], c)

	case "demo":
		err = cmdDemo(c)

	case "serve":
		if err = rest.MakeSandbox(logWriter, *chroot, *setuid); err == nil {
			err = rest.Serve(*addr)
		}

	case "legal":
		nl.LogPrint(legal)

	case "version":
		cmdVersion(logWriter, c)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogSync()
}

// Returns true if the flag with the given name was set on the command line
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// Reads parameters from the configuration file if given, and overrides them with explicitly set flags
func parameters() (config.Parameters, error) {
	p := config.NewParameters()
	if *cfg != "" {
		var err error
		if p, err = config.LoadConfiguration(*cfg); err != nil {
			return p, err
		}
	}

	if isFlagSet("bits") || *cfg == "" {
		p.Bits = *bits
	}
	if isFlagSet("flat") {
		p.Flat = *flat
	}
	if isFlagSet("deinterlace") {
		p.Deinterlace = *deinterlace
	}

	lvSet := 0
	for _, name := range []string{"lvMin", "lvGamma", "lvMax"} {
		if isFlagSet(name) {
			lvSet++
		}
	}
	if lvSet != 0 && lvSet != 3 {
		return p, fmt.Errorf("levels need all of -lvMin, -lvGamma and -lvMax")
	} else if lvSet == 3 {
		p.Levels = &config.LevelParameters{Min: lvMin, Gamma: lvGamma, Max: lvMax}
	}

	if isFlagSet("brightness") {
		p.Brightness = *brightness
	}
	if isFlagSet("contrast") {
		p.Contrast = *contrast
	}
	if isFlagSet("gamma") && *gamma != 1 {
		p.Gamma = &config.GammaParameters{Gamma: *gamma, Black: black}
		if *white >= 0 {
			p.Gamma.White = white
		}
	}
	if isFlagSet("out") {
		p.Output = *out
	}
	if isFlagSet("palette") {
		p.Palette = *palette
	}

	return p, p.FinalizeConfiguration()
}

// Runs the correction sequence on each of the given input files
func cmdCorrect(fileNames []string, c *ops.Context) error {
	p, err := parameters()
	if err != nil {
		return err
	}
	if p.Output == "" {
		fmt.Fprintf(c.Log, "Warning: no output pattern given, corrected frames are not saved\n")
	}
	seq := p.Sequence()

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "Correcting frames with these settings:\n%s\n", string(m))

	// build the flat before fanning out, so its size can bound the frames in flight
	flatField, err := pre.NewOpFlat(p.Flat).Init(c)
	if err != nil {
		return err
	}
	pixels := 0
	if flatField != nil {
		pixels = int(flatField.Pixels())
	}

	loads, err := ops.NewOpLoadMany(fileNames).MakePromises(nil, c)
	if err != nil {
		return err
	}
	outs, err := ops.NewOpForEach(seq).MakePromises(loads, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(outs, c.FramesInFlight(pixels), true)
	return err
}

// Builds a flat field from a reference frame, reports its average and saves the cleaned reference
func cmdFlat(fileNames []string, c *ops.Context) error {
	if len(fileNames) != 1 {
		return fmt.Errorf("flat needs exactly one reference frame, got %d", len(fileNames))
	}
	if fileNames[0] == "" {
		return errors.New("flat needs a reference frame file name")
	}
	ff, err := pre.NewOpFlat(fileNames[0]).Init(c)
	if err != nil {
		return err
	}
	if ff == nil {
		return fmt.Errorf("no flat field built from %s", fileNames[0])
	}
	fmt.Fprintf(c.Log, "Flat field average is %.6g\n", ff.Avg())
	if *out == "" {
		return nil
	}
	_, err = ops.NewOpSave(*out, *palette).Apply(ff.Frame(), c)
	return err
}

// Shows statistics and the histogram peak of the given input files
func cmdStats(fileNames []string, c *ops.Context) error {
	loads, err := ops.NewOpLoadMany(fileNames).MakePromises(nil, c)
	if err != nil {
		return err
	}
	images, err := ops.MaterializeAll(loads, c.MaxThreads, false)
	if err != nil {
		return err
	}
	bins := make([]int32, 256)
	for _, f := range images {
		min, max := f.Stats.Min(), f.Stats.Max()
		stats.Histogram(f.Data, min, max, bins)
		peak, count := stats.GetPeak(bins, min, max)
		fmt.Fprintf(c.Log, "%d: %s %s %s histogram peak %.6g (%d samples) in %s\n",
			f.ID, f.DimensionsToString(), f.Type, f.Stats, peak, count, f.FileName)
	}
	return nil
}

// Width and height of the demo gradient
const demoWidth, demoHeight = 256, 64

// Applies the levels 100, 1.2, 240 to an 8-bit gradient and saves the result
func cmdDemo(c *ops.Context) error {
	f := fits.NewImageFromNaxisn([]int32{demoWidth, demoHeight}, fits.SampleUint8, nil)
	for i := range f.Data {
		f.Data[i] = float32(i % demoWidth)
	}
	fmt.Fprintf(c.Log, "%d: Gradient %s %s\n", f.ID, f.DimensionsToString(), f.Stats)

	outPattern := *out
	if outPattern == "" {
		outPattern = "demo.png"
	}
	seq := ops.NewOpSequence(
		stretch.NewOpLevels(true, 100, 1.2, 240, 8),
		ops.NewOpSave(outPattern, *palette),
	)
	outs, err := seq.MakePromises([]ops.Promise{func() (*fits.Image, error) { return f, nil }}, c)
	if err != nil {
		return err
	}
	images, err := ops.MaterializeAll(outs, 1, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "%d: Adjusted %s\n", images[0].ID, images[0].Stats)
	return nil
}

func cmdVersion(logWriter io.Writer, c *ops.Context) {
	fmt.Fprintf(logWriter, "Version %s\n", version)
	fmt.Fprintf(logWriter, "%s with %d logical cores, %d MiB memory, %s/%s\n",
		cpuid.CPU.BrandName, cpuid.CPU.LogicalCores, c.MemoryMB, runtime.GOOS, runtime.GOARCH)
}
