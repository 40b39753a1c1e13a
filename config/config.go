// Site configuration for jobstats: the thresholds that decide when a note is printed and in which
// style, the per-cluster table that drives cluster-specific advice, and the advisory links.
//
// A Config is built once per process (Default, then optionally an ini file on top) and validated,
// and is read-only afterwards.  It is shared freely between goroutines in the daemon.

package config

import (
	"errors"
	"fmt"
	"slices"
)

const (
	DefaultPromServer     = "http://vigilant2:8480"
	DefaultSamplingPeriod = 30
	DefaultFractionalGPU  = "mig"
	bytesPerGiB           = 1 << 30
)

// Thresholds are percentages except MinRuntimeSeconds.  A "red" value is the bound below which a
// note is bold-red; a "black" value is the bound below which a note is printed at all.

type Thresholds struct {
	GPUUtilizationRed   int
	GPUUtilizationBlack int
	CPUUtilizationRed   int
	CPUUtilizationBlack int
	TimeEfficiencyRed   int
	TimeEfficiencyBlack int
	MinMemoryUsage      int
	MinRuntimeSeconds   int64
}

func DefaultThresholds(samplingPeriod int64) Thresholds {
	return Thresholds{
		GPUUtilizationRed:   15,
		GPUUtilizationBlack: 25,
		CPUUtilizationRed:   65,
		CPUUtilizationBlack: 80,
		TimeEfficiencyRed:   40,
		TimeEfficiencyBlack: 70,
		MinMemoryUsage:      70,
		MinRuntimeSeconds:   10 * samplingPeriod,
	}
}

type Config struct {
	Thresholds Thresholds

	// Seconds between metric samples.
	SamplingPeriod int64

	// The partition that hands out fractions of a GPU without per-instance utilization.
	FractionalGPUPartition string

	PromServer  string
	ArchiveURI  string
	KafkaBroker string

	Links Links

	clusters map[string]Cluster

	// Scheduler name for a cluster where it differs from the name users know.
	schedulerNames map[string]string
}

func Default() *Config {
	clusters := make(map[string]Cluster)
	for _, c := range defaultClusters() {
		clusters[c.Name] = c
	}
	return &Config{
		Thresholds:             DefaultThresholds(DefaultSamplingPeriod),
		SamplingPeriod:         DefaultSamplingPeriod,
		FractionalGPUPartition: DefaultFractionalGPU,
		PromServer:             DefaultPromServer,
		Links:                  DefaultLinks(),
		clusters:               clusters,
		schedulerNames:         map[string]string{"tiger": "tiger2"},
	}
}

// Cluster returns the entry for the named cluster.  Unknown clusters get a zero entry carrying only
// the name; every cluster-specific rule is disabled for it.

func (c *Config) Cluster(name string) Cluster {
	if probe, found := c.clusters[c.UserName(name)]; found {
		return probe
	}
	return Cluster{Name: name}
}

func (c *Config) KnownCluster(name string) bool {
	_, found := c.clusters[c.UserName(name)]
	return found
}

// SchedulerName maps the name users know to the name Slurm accounting knows.

func (c *Config) SchedulerName(name string) string {
	if probe, found := c.schedulerNames[name]; found {
		return probe
	}
	return name
}

// UserName is the inverse of SchedulerName.

func (c *Config) UserName(name string) string {
	for user, sched := range c.schedulerNames {
		if sched == name {
			return user
		}
	}
	return name
}

func (c *Config) ClusterNames() []string {
	names := make([]string, 0, len(c.clusters))
	for n := range c.clusters {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Validate checks the thresholds and that every supported cluster has a usable entry.

func (c *Config) Validate() error {
	var errs []error
	t := c.Thresholds
	for _, p := range []struct {
		name       string
		red, black int
	}{
		{"GPU utilization", t.GPUUtilizationRed, t.GPUUtilizationBlack},
		{"CPU utilization", t.CPUUtilizationRed, t.CPUUtilizationBlack},
		{"time efficiency", t.TimeEfficiencyRed, t.TimeEfficiencyBlack},
	} {
		if p.red < 0 || p.black > 100 || p.red > p.black {
			errs = append(errs, fmt.Errorf("Nonsensical %s thresholds: red %d, black %d", p.name, p.red, p.black))
		}
	}
	if t.MinMemoryUsage < 0 || t.MinMemoryUsage > 100 {
		errs = append(errs, fmt.Errorf("Nonsensical minimum memory usage %d", t.MinMemoryUsage))
	}
	if c.SamplingPeriod <= 0 {
		errs = append(errs, fmt.Errorf("Nonsensical sampling period %d", c.SamplingPeriod))
	}
	for _, name := range SupportedClusters {
		cl, found := c.clusters[name]
		if !found {
			errs = append(errs, fmt.Errorf("No configuration for cluster %s", name))
			continue
		}
		if cl.CoresPerNode <= 0 || cl.DefaultMemPerCore <= 0 {
			errs = append(errs, fmt.Errorf("Nonsensical CPU/memory information for cluster %s", name))
		}
	}
	return errors.Join(errs...)
}

// DefaultMemPerCoreGiB is the cluster default memory per core in GiB, 0 for unknown clusters.

func (cl Cluster) DefaultMemPerCoreGiB() float64 {
	return cl.DefaultMemPerCore / bytesPerGiB
}

// Known is false for the zero entry returned for unknown clusters.

func (cl Cluster) Known() bool {
	return cl.CoresPerNode > 0
}
