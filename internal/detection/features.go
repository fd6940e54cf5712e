// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package detection

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/ipdrlens/internal/models"
)

// Feature names a model input column.
type Feature string

const (
	FeatureDuration        Feature = "session_duration_seconds"
	FeatureVolume          Feature = "data_volume_mb"
	FeatureHourOfDay       Feature = "hour_of_day"
	FeatureDayOfWeek       Feature = "day_of_week"
	FeatureSrcAvgDuration  Feature = "src_avg_duration"
	FeatureSrcStdDuration  Feature = "src_std_duration"
	FeatureSrcAvgVolume    Feature = "src_avg_volume"
	FeatureSrcStdVolume    Feature = "src_std_volume"
	FeatureUniqueDestCount Feature = "unique_dest_count"
)

// DefaultFeatureSet is used when a run names no features.
var DefaultFeatureSet = []Feature{
	FeatureDuration,
	FeatureVolume,
	FeatureHourOfDay,
	FeatureDayOfWeek,
	FeatureSrcAvgDuration,
	FeatureSrcStdDuration,
	FeatureSrcAvgVolume,
	FeatureSrcStdVolume,
	FeatureUniqueDestCount,
}

var knownFeatures = func() map[Feature]bool {
	m := make(map[Feature]bool, len(DefaultFeatureSet))
	for _, f := range DefaultFeatureSet {
		m[f] = true
	}
	return m
}()

// ParseFeatureSet converts names to features, rejecting unknown and
// duplicate names. An empty list yields DefaultFeatureSet.
func ParseFeatureSet(names []string) ([]Feature, error) {
	if len(names) == 0 {
		return DefaultFeatureSet, nil
	}
	seen := make(map[Feature]bool, len(names))
	out := make([]Feature, 0, len(names))
	for _, n := range names {
		f := Feature(n)
		if !knownFeatures[f] {
			return nil, fmt.Errorf("%w: unknown feature %q", ErrInvalidConfig, n)
		}
		if seen[f] {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrInvalidConfig, n)
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// sourceStats summarizes every session of one source IP.
type sourceStats struct {
	avgDuration, stdDuration *float64
	avgVolume, stdVolume     *float64
}

// destHourKey is one source IP within one clock hour (date included).
type destHourKey struct {
	sourceIP string
	hour     time.Time
}

// behaviourStats holds the per-source aggregates and the distinct
// destination counts per source and clock hour.
type behaviourStats struct {
	bySource     map[string]sourceStats
	destsPerHour map[destHourKey]int
}

type sourceAccumulator struct {
	durations []float64
	volumes   []float64
}

// buildBehaviourStats aggregates duration and volume per source IP over all
// of its sessions, and counts distinct destinations per source IP and
// truncated UTC start hour. Records without a source IP take part in
// neither; records without a start time only in the per-source figures.
// Values are accumulated in record order so sums are reproducible.
func buildBehaviourStats(records []models.EnrichedRecord) behaviourStats {
	acc := make(map[string]*sourceAccumulator)
	dests := make(map[destHourKey]map[string]struct{})
	for i := range records {
		r := &records[i]
		if r.SourceIP == nil || *r.SourceIP == "" {
			continue
		}
		g := acc[*r.SourceIP]
		if g == nil {
			g = &sourceAccumulator{}
			acc[*r.SourceIP] = g
		}
		if r.SessionDurationSeconds != nil {
			g.durations = append(g.durations, *r.SessionDurationSeconds)
		}
		if r.DataVolumeMB != nil {
			g.volumes = append(g.volumes, *r.DataVolumeMB)
		}

		key, ok := destKey(r)
		if !ok {
			continue
		}
		set := dests[key]
		if set == nil {
			set = make(map[string]struct{})
			dests[key] = set
		}
		if r.DestinationIP != nil && *r.DestinationIP != "" {
			set[*r.DestinationIP] = struct{}{}
		}
	}

	stats := behaviourStats{
		bySource:     make(map[string]sourceStats, len(acc)),
		destsPerHour: make(map[destHourKey]int, len(dests)),
	}
	for ip, g := range acc {
		var s sourceStats
		s.avgDuration, s.stdDuration = meanStd(g.durations)
		s.avgVolume, s.stdVolume = meanStd(g.volumes)
		stats.bySource[ip] = s
	}
	for key, set := range dests {
		stats.destsPerHour[key] = len(set)
	}
	return stats
}

func destKey(r *models.EnrichedRecord) (destHourKey, bool) {
	if r.SourceIP == nil || *r.SourceIP == "" || r.StartTime == nil {
		return destHourKey{}, false
	}
	return destHourKey{sourceIP: *r.SourceIP, hour: r.StartTime.UTC().Truncate(time.Hour)}, true
}

// meanStd returns the mean and sample standard deviation. The deviation of a
// single value is 0; an empty slice yields nils.
func meanStd(values []float64) (mean, std *float64) {
	n := len(values)
	if n == 0 {
		return nil, nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := sum / float64(n)

	var sd float64
	if n > 1 {
		var ss float64
		for _, v := range values {
			d := v - m
			ss += d * d
		}
		sd = math.Sqrt(ss / float64(n-1))
	}
	return &m, &sd
}

// featureMatrix holds the rows that have every selected feature. rows[i]
// belongs to records[index[i]].
type featureMatrix struct {
	rows  [][]float64
	index []int
}

func buildFeatureMatrix(records []models.EnrichedRecord, features []Feature) featureMatrix {
	var stats *behaviourStats
	for _, f := range features {
		if isAggregate(f) {
			b := buildBehaviourStats(records)
			stats = &b
			break
		}
	}

	m := featureMatrix{}
	for i := range records {
		row, ok := featureRow(&records[i], features, stats)
		if !ok {
			continue
		}
		m.rows = append(m.rows, row)
		m.index = append(m.index, i)
	}
	return m
}

func isAggregate(f Feature) bool {
	switch f {
	case FeatureSrcAvgDuration, FeatureSrcStdDuration, FeatureSrcAvgVolume, FeatureSrcStdVolume, FeatureUniqueDestCount:
		return true
	}
	return false
}

// featureRow extracts the selected features of one record. ok is false when
// any of them is missing.
func featureRow(r *models.EnrichedRecord, features []Feature, stats *behaviourStats) ([]float64, bool) {
	row := make([]float64, len(features))
	var (
		g          sourceStats
		grouped    bool
		dests      int
		destsKnown bool
	)
	if stats != nil && r.SourceIP != nil {
		g, grouped = stats.bySource[*r.SourceIP]
		if key, ok := destKey(r); ok {
			dests, destsKnown = stats.destsPerHour[key]
		}
	}

	for j, f := range features {
		var v *float64
		switch f {
		case FeatureDuration:
			v = r.SessionDurationSeconds
		case FeatureVolume:
			v = r.DataVolumeMB
		case FeatureHourOfDay:
			if r.StartTime != nil {
				h := float64(r.StartTime.UTC().Hour())
				v = &h
			}
		case FeatureDayOfWeek:
			if r.StartTime != nil {
				// Monday is 0.
				d := float64((int(r.StartTime.UTC().Weekday()) + 6) % 7)
				v = &d
			}
		case FeatureSrcAvgDuration:
			if grouped {
				v = g.avgDuration
			}
		case FeatureSrcStdDuration:
			if grouped {
				v = g.stdDuration
			}
		case FeatureSrcAvgVolume:
			if grouped {
				v = g.avgVolume
			}
		case FeatureSrcStdVolume:
			if grouped {
				v = g.stdVolume
			}
		case FeatureUniqueDestCount:
			if destsKnown {
				u := float64(dests)
				v = &u
			}
		}
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return nil, false
		}
		row[j] = *v
	}
	return row, true
}
