package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	ini "github.com/lars-t-hansen/ini"
)

// MT: Constant after initialization
var (
	p = ini.NewParser()

	thresholds          = p.AddSection("thresholds")
	gpuUtilizationRed   = thresholds.AddString("gpu-utilization-red")
	gpuUtilizationBlack = thresholds.AddString("gpu-utilization-black")
	cpuUtilizationRed   = thresholds.AddString("cpu-utilization-red")
	cpuUtilizationBlack = thresholds.AddString("cpu-utilization-black")
	timeEfficiencyRed   = thresholds.AddString("time-efficiency-red")
	timeEfficiencyBlack = thresholds.AddString("time-efficiency-black")
	minMemoryUsage      = thresholds.AddString("min-memory-usage")
	minRuntimeSeconds   = thresholds.AddString("min-runtime-seconds")

	dataSource  = p.AddSection("data-source")
	promServer  = dataSource.AddString("prom-server")
	archive     = dataSource.AddString("archive")
	kafkaBroker = dataSource.AddString("kafka-broker")

	site                   = p.AddSection("site")
	fractionalGPUPartition = site.AddString("fractional-gpu-partition")
	samplingPeriod         = site.AddString("sampling-period")
)

// DefaultFile is $HOME/.jobstats, or "" if HOME is not set.

func DefaultFile() string {
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return path.Join(path.Clean(home), ".jobstats")
}

// LoadFile applies the settings in the named ini file on top of Default().  A missing file is an
// error only if mustExist is set.

func LoadFile(fn string, mustExist bool) (*Config, error) {
	input, err := os.Open(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return Default(), nil
		}
		return nil, fmt.Errorf("Error in trying to open %s\n%w", fn, err)
	}
	defer input.Close()
	c, err := Load(input)
	if err != nil {
		return nil, fmt.Errorf("Error in trying to parse %s\n%w", fn, err)
	}
	return c, nil
}

// Load applies the settings read from input on top of Default().

func Load(input io.Reader) (*Config, error) {
	store, err := p.Parse(input)
	if err != nil {
		return nil, err
	}
	c := Default()
	var errs []error
	setInt := func(dest *int, f *ini.Field, name string) {
		if f.Present(store) {
			n, err := strconv.Atoi(f.StringVal(store))
			if err != nil {
				errs = append(errs, fmt.Errorf("Bad integer for %s\n%w", name, err))
				return
			}
			*dest = n
		}
	}
	setString := func(dest *string, f *ini.Field) {
		if f.Present(store) {
			*dest = os.ExpandEnv(f.StringVal(store))
		}
	}

	var period = int(c.SamplingPeriod)
	setInt(&period, samplingPeriod, "sampling-period")
	if int64(period) != c.SamplingPeriod {
		c.SamplingPeriod = int64(period)
		c.Thresholds = DefaultThresholds(c.SamplingPeriod)
	}
	t := &c.Thresholds
	setInt(&t.GPUUtilizationRed, gpuUtilizationRed, "gpu-utilization-red")
	setInt(&t.GPUUtilizationBlack, gpuUtilizationBlack, "gpu-utilization-black")
	setInt(&t.CPUUtilizationRed, cpuUtilizationRed, "cpu-utilization-red")
	setInt(&t.CPUUtilizationBlack, cpuUtilizationBlack, "cpu-utilization-black")
	setInt(&t.TimeEfficiencyRed, timeEfficiencyRed, "time-efficiency-red")
	setInt(&t.TimeEfficiencyBlack, timeEfficiencyBlack, "time-efficiency-black")
	setInt(&t.MinMemoryUsage, minMemoryUsage, "min-memory-usage")
	var minRuntime = int(t.MinRuntimeSeconds)
	setInt(&minRuntime, minRuntimeSeconds, "min-runtime-seconds")
	t.MinRuntimeSeconds = int64(minRuntime)

	setString(&c.PromServer, promServer)
	setString(&c.ArchiveURI, archive)
	setString(&c.KafkaBroker, kafkaBroker)
	setString(&c.FractionalGPUPartition, fractionalGPUPartition)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}
