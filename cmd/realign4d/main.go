package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fmrirealign/pkg/config"
	"fmrirealign/pkg/realign"
	"fmrirealign/pkg/timing"
	"fmrirealign/pkg/transform"
	"fmrirealign/pkg/volume"
)

func main() {
	// Parse command line arguments
	input := flag.String("input", "", "Comma-separated raw volume files (little-endian float64), one per run")
	dims := flag.String("dims", "", "Volume dimensions as nx,ny,nz,nt")
	voxel := flag.String("voxel", "1,1,1", "Voxel sizes in mm as sx,sy,sz")
	configPath := flag.String("config", "realign4d.yaml", "Configuration file (YAML)")
	outputDir := flag.String("output-dir", "realign_results", "Directory for motion parameters and corrected volumes")
	resample := flag.Bool("resample", false, "Write fully resampled corrected volumes")
	flag.Parse()

	// Validate inputs
	if *input == "" || *dims == "" {
		flag.Usage()
		os.Exit(1)
	}

	nx, ny, nz, nt, err := parseDims(*dims)
	if err != nil {
		log.Fatalf("Invalid -dims: %v", err)
	}
	sx, sy, sz, err := parseVoxel(*voxel)
	if err != nil {
		log.Fatalf("Invalid -voxel: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("4D fMRI RIGID MOTION AND SLICE TIMING CORRECTION")
	fmt.Println("================================")

	world, err := transform.NewScalingAffine(sx, sy, sz)
	if err != nil {
		log.Fatalf("Failed to build voxel-to-world map: %v", err)
	}
	policy := timing.Order(cfg.Acquisition.SliceOrder)
	if policy != timing.Ascending && policy != timing.Descending {
		log.Fatalf("Invalid slice order %q: want %q or %q",
			cfg.Acquisition.SliceOrder, timing.Ascending, timing.Descending)
	}
	order := timing.BuildOrder(nz, policy, cfg.Acquisition.Interleaved)
	acq, err := timing.NewAcquisition(nz, cfg.Acquisition.TR, cfg.Acquisition.TRSlices,
		cfg.Acquisition.Start, order, cfg.Acquisition.ReversedSlices)
	if err != nil {
		log.Fatalf("Invalid acquisition timing: %v", err)
	}

	// Load each run
	var runs []*realign.Series
	files := strings.Split(*input, ",")
	for _, file := range files {
		vol, err := loadVolume(strings.TrimSpace(file), nx, ny, nz, nt)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", file, err)
		}
		series, err := realign.NewSeries(vol, world.Matrix(), acq)
		if err != nil {
			log.Fatalf("Failed to build run from %s: %v", file, err)
		}
		runs = append(runs, series)
	}
	fmt.Printf("Loaded %d run(s) of %dx%dx%d voxels, %d scans each\n", len(runs), nx, ny, nz, nt)

	opts := realign.Options{
		WithinLoops:  cfg.Realign.WithinLoops,
		BetweenLoops: cfg.Realign.BetweenLoops,
		Speedup:      cfg.Realign.Speedup,
		Optimizer:    cfg.Realign.Optimizer,
		Verbose:      cfg.Realign.Verbose,
	}

	fmt.Printf("Starting realignment (optimizer: %s, speedup: %d)...\n", opts.Optimizer, opts.Speedup)
	startTime := time.Now()
	transforms, err := realign.RealignRuns(runs, opts)
	if err != nil {
		log.Fatalf("Realignment failed: %v", err)
	}
	fmt.Printf("\nRealignment completed in %.2f seconds\n", time.Since(startTime).Seconds())

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Write motion parameters per run
	for r, runTransforms := range transforms {
		paramsPath := filepath.Join(*outputDir, fmt.Sprintf("motion_run%02d.txt", r+1))
		if err := writeMotionParams(paramsPath, runTransforms); err != nil {
			log.Fatalf("Failed to write motion parameters: %v", err)
		}
		fmt.Printf("Motion parameters for run %d saved to: %s\n", r+1, paramsPath)
	}

	// Optionally resample the corrected volumes
	if *resample {
		for r, run := range runs {
			fmt.Printf("Resampling corrected run %d/%d...\n", r+1, len(runs))
			corrected, err := realign.Resample4D(run, transforms[r])
			if err != nil {
				log.Fatalf("Resampling failed: %v", err)
			}
			outPath := filepath.Join(*outputDir, fmt.Sprintf("corrected_run%02d.bin", r+1))
			if err := writeVolume(outPath, corrected); err != nil {
				log.Fatalf("Failed to write corrected volume: %v", err)
			}
			fmt.Printf("Corrected volume saved to: %s\n", outPath)
		}
	}
}

// parseDims parses "nx,ny,nz,nt".
func parseDims(s string) (nx, ny, nz, nt int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("want nx,ny,nz,nt, got %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		vals[i], err = strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("bad dimension %q: %v", p, err)
		}
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// parseVoxel parses "sx,sy,sz".
func parseVoxel(s string) (sx, sy, sz float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want sx,sy,sz, got %q", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("bad voxel size %q: %v", p, err)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// loadVolume reads a raw little-endian float64 volume.
func loadVolume(path string, nx, ny, nz, nt int) (*volume.Volume4D, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data := make([]float64, nx*ny*nz*nt)
	if err := binary.Read(file, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("reading intensities: %v", err)
	}
	return volume.FromData(nx, ny, nz, nt, data)
}

// writeVolume writes a volume as raw little-endian float64.
func writeVolume(path string, vol *volume.Volume4D) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return binary.Write(file, binary.LittleEndian, vol.Data())
}

// writeMotionParams writes one line of six parameters per scan:
// translations in mm, then radius-scaled rotations.
func writeMotionParams(path string, transforms []*transform.Rigid) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, tr := range transforms {
		p := tr.Params()
		if _, err := fmt.Fprintf(file, "%12.6f %12.6f %12.6f %12.6f %12.6f %12.6f\n",
			p[0], p[1], p[2], p[3], p[4], p[5]); err != nil {
			return err
		}
	}
	return nil
}
