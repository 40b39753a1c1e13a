// The Sample Store holds the per-node summary statistics for one job: for every host a mapping from
// metric name to either a scalar or, for GPU metrics, a mapping from device index to scalar.
//
// The JSON form is the one stored in the scheduler's AdminComment (see payload.go) and printed by
// `jobstats -j`:
//
//   {"della-r1c1": {"cpus": 4, "gpu_utilization": {"0": 97.5}, ...}, ...}

package sample

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"strconv"
)

// Metric names.
const (
	TotalMemory    = "total_memory"
	UsedMemory     = "used_memory"
	TotalTime      = "total_time"
	CPUs           = "cpus"
	GPUTotalMemory = "gpu_total_memory"
	GPUUsedMemory  = "gpu_used_memory"
	GPUUtilization = "gpu_utilization"
)

type Store map[string]Node

type Node map[string]Metric

// A Metric is a scalar when Devices is nil, otherwise a per-device map.

type Metric struct {
	Value   float64
	Devices map[string]float64
}

func Scalar(v float64) Metric {
	return Metric{Value: v}
}

func PerDevice(devices map[string]float64) Metric {
	return Metric{Devices: devices}
}

func (m Metric) IsDevices() bool {
	return m.Devices != nil
}

// Set stores a scalar for the node.

func (s Store) Set(node, name string, v float64) {
	n := s.node(node)
	n[name] = Scalar(finite(v))
}

// SetDevice stores a per-device value for the node.

func (s Store) SetDevice(node, name, device string, v float64) {
	n := s.node(node)
	m := n[name]
	if m.Devices == nil {
		m = PerDevice(make(map[string]float64))
	}
	m.Devices[device] = finite(v)
	n[name] = m
}

// NaN and infinities have no JSON form.  They come from rate queries over empty windows and are
// stored as 0.

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (s Store) node(node string) Node {
	n, found := s[node]
	if !found {
		n = make(Node)
		s[node] = n
	}
	return n
}

// Scalar returns the scalar value of the metric, 0 if absent or not a scalar.

func (n Node) Scalar(name string) float64 {
	m, found := n[name]
	if !found || m.IsDevices() {
		return 0
	}
	return m.Value
}

// Devices returns the device map of the metric and whether the metric is present.

func (n Node) Devices(name string) (map[string]float64, bool) {
	m, found := n[name]
	if !found {
		return nil, false
	}
	if m.Devices == nil {
		return map[string]float64{}, true
	}
	return m.Devices, true
}

// SortedNodes returns the node names of the store.  Nodes named in `order` come first and in that
// order, the rest follow sorted by name.

func (s Store) SortedNodes(order []string) []string {
	names := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, n := range order {
		if _, found := s[n]; found && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	rest := make([]string, 0)
	for n := range s {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// SortDevices orders device indices numerically where both are numbers, otherwise as strings.

func SortDevices(devices []string) {
	slices.SortFunc(devices, func(a, b string) int {
		x, errx := strconv.Atoi(a)
		y, erry := strconv.Atoi(b)
		switch {
		case errx == nil && erry == nil:
			return x - y
		case errx == nil:
			return -1
		case erry == nil:
			return 1
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
}

// Integral values print without a fractional part, as they were received from the metrics store.

func (m Metric) MarshalJSON() ([]byte, error) {
	if m.Devices != nil {
		keys := make([]string, 0, len(m.Devices))
		for k := range m.Devices {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var b bytes.Buffer
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			b.Write(kb)
			b.WriteByte(':')
			b.WriteString(formatNumber(m.Devices[k]))
		}
		b.WriteByte('}')
		return b.Bytes(), nil
	}
	return []byte(formatNumber(m.Value)), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var devices map[string]float64
		if err := json.Unmarshal(data, &devices); err != nil {
			return err
		}
		*m = PerDevice(devices)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Scalar(v)
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
