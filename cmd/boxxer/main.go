// Copyright (C) 2024 Markus L. Noga
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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/boxxer"
	"github.com/mlnoga/boxxer/internal/config"
	"github.com/mlnoga/boxxer/internal/logx"
	"github.com/mlnoga/boxxer/internal/render"
	"github.com/mlnoga/boxxer/internal/rest"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var conf = flag.String("config", "", "load tunables from YAML `file`")
var out = flag.String("out", "out.csv", "save detected maxima as CSV to `file`")
var jpg = flag.String("jpg", "%auto", "save overlay of first frame as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")

var dims = flag.String("dims", "", "stack dimensions as `x,y[,z],nFrames`, axis 0 fastest-varying")
var sigmas = flag.String("sigmas", "1.0,1.26,1.59,2.0", "detection scale sigmas in pixels, comma-separated")
var mode = flag.String("mode", "log", "scale-space response, one of log, dog")
var sigmaRatio = flag.Float64("sigmaRatio", 0, "DoG inhibitory-to-excitatory sigma ratio, 0=default")
var neighborhood = flag.Int("neighborhood", 3, "odd box size for spatial maxima")
var scaleNeighborhood = flag.Int("scaleNeighborhood", 3, "odd box size for cross-scale rejection")
var threads = flag.Int("threads", 0, "maximum number of worker threads, 0=auto")

var zoom = flag.Int("zoom", 1, "JPEG overlay zoom factor")
var radius = flag.Int("radius", 3, "JPEG overlay marker half-width in pixels")
var quality = flag.Int("quality", 95, "JPEG overlay quality")

var addr = flag.String("addr", ":8080", "serve: listen `address`")
var chroot = flag.String("chroot", "", "serve: chroot into `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change to user `id` before serving, -1=no change")

func main() {
	start := time.Now()
	flag.Usage = func() {
		fmt.Printf(`Boxxer Copyright (c) 2024 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (detect2d|detect3d|serve|legal|version) [stack.f32]

Commands:
  detect2d Detect blobs in a raw float32 stack of 2D frames
  detect3d Detect blobs in a raw float32 stack of 3D volumes
  serve    Start the HTTP detection service
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := logx.AlsoToFile(*log); err != nil {
			logx.Fatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Also auto-select JPEG output target
	if *jpg == "%auto" {
		if *out != "" {
			*jpg = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".jpg"
		} else {
			*jpg = ""
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logx.Fatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logx.Fatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	if *conf != "" {
		settings, err := config.Load(*conf)
		if err != nil {
			logx.Fatalf("Error loading config '%s': %s\n", *conf, err.Error())
		}
		if err := settings.Apply(); err != nil {
			logx.Fatalf("Error applying config '%s': %s\n", *conf, err.Error())
		}
		if *threads == 0 {
			*threads = settings.MaxThreads
		}
	}
	boxxer.MaxThreads = *threads

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	logx.Printf("Boxxer %s on %s with %d physical, %d logical cores and %d MiB physical memory\n",
		version, cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, totalMiBs)

	var err error
	switch args[0] {
	case "detect2d":
		err = cmdDetect(args[1:], 2)

	case "detect3d":
		err = cmdDetect(args[1:], 3)

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid); err == nil {
			err = rest.Serve(*addr)
		}

	case "legal":
		logx.Print(legal)

	case "version":
		logx.Printf("Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		logx.Printf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	logx.Printf("\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			logx.Fatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			logx.Fatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		logx.Printf("Error: %s\n", err.Error())
		os.Exit(-1)
	}
	logx.Sync()
}

// cmdDetect runs scale-space detection on one raw float32 stack file.
func cmdDetect(args []string, d int) error {
	if len(args) != 1 {
		return fmt.Errorf("need exactly one input stack file, got %d", len(args))
	}
	stackDims, err := parseDims(*dims, d+1)
	if err != nil {
		return err
	}
	sigma, err := parseSigmas(*sigmas, d)
	if err != nil {
		return err
	}
	if *mode != "log" && *mode != "dog" {
		return fmt.Errorf("-mode '%s' must be log or dog", *mode)
	}
	nScales := len(sigma[0])

	stack, err := readStack(args[0], stackDims)
	if err != nil {
		return err
	}
	logx.Printf("Read %s: %v stack, %d scales, mode %s\n", args[0], stack.Dims, nScales, *mode)

	var coords []uint32
	var vals []float32
	if d == 2 {
		b, err := boxxer.New2D[float32](stackDims[:2], sigma)
		if err != nil {
			return err
		}
		if *sigmaRatio > 0 {
			if err := b.SetDoGSigmaRatio(float32(*sigmaRatio)); err != nil {
				return err
			}
		}
		if *mode == "dog" {
			coords, vals, err = b.ScaleSpaceDoGMaxima(stack, *neighborhood, *scaleNeighborhood)
		} else {
			coords, vals, err = b.ScaleSpaceLoGMaxima(stack, *neighborhood, *scaleNeighborhood)
		}
		if err != nil {
			return err
		}
	} else {
		b, err := boxxer.New3D[float32](stackDims[:3], sigma)
		if err != nil {
			return err
		}
		if *sigmaRatio > 0 {
			if err := b.SetDoGSigmaRatio(float32(*sigmaRatio)); err != nil {
				return err
			}
		}
		if *mode == "dog" {
			coords, vals, err = b.ScaleSpaceDoGMaxima(stack, *neighborhood, *scaleNeighborhood)
		} else {
			coords, vals, err = b.ScaleSpaceLoGMaxima(stack, *neighborhood, *scaleNeighborhood)
		}
		if err != nil {
			return err
		}
	}
	logx.Printf("Detected %d maxima\n", len(vals))

	if *out != "" {
		logx.Printf("Writing CSV to %s ...\n", *out)
		if err := writeMaximaCSV(*out, coords, vals, d+1); err != nil {
			return err
		}
	}
	if *jpg != "" && d == 2 {
		logx.Printf("Writing JPG overlay of frame 0 to %s ...\n", *jpg)
		frame, err := stack.Frame(0)
		if err != nil {
			return err
		}
		overlay, err := render.Overlay(frame, render.MarkersFromTable(coords, 0), nScales,
			render.Options{Radius: *radius, Zoom: *zoom, Quality: *quality})
		if err != nil {
			return err
		}
		if err := render.WriteJPGToFile(*jpg, overlay, *quality); err != nil {
			return err
		}
	}
	return nil
}

// parseDims parses "x,y[,z],nFrames" into want positive values.
func parseDims(s string, want int) ([]uint32, error) {
	if s == "" {
		return nil, fmt.Errorf("missing -dims, need %d comma-separated sizes", want)
	}
	parts := strings.Split(s, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("-dims '%s' has %d sizes, want %d", s, len(parts), want)
	}
	ds := make([]uint32, want)
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("-dims entry '%s' is not a positive integer", p)
		}
		ds[i] = uint32(v)
	}
	return ds, nil
}

// parseSigmas parses the isotropic per-scale sigma list and replicates
// it into d axis rows.
func parseSigmas(s string, d int) ([][]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 1 {
		return nil, fmt.Errorf("-sigmas must list at least one scale")
	}
	row := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("-sigmas entry '%s' is not a positive number", p)
		}
		row[i] = float32(v)
	}
	sigma := make([][]float32, d)
	for r := range sigma {
		sigma[r] = row
	}
	return sigma, nil
}
