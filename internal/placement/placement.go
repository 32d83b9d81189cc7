// Package placement implements the placement selector (spec §4.5): scores
// candidate hosts for a new worker using health, capacity headroom, and
// project affinity, and picks the best-qualified host.
package placement

import (
	"sort"

	"github.com/hive-agi/hostfleet/internal/registry"
	"github.com/hive-agi/hostfleet/internal/types"
)

// MaxWorkersPerHost is the capacity ceiling used both for the capacity
// bonus and the at_capacity disqualification (spec §4.5).
const MaxWorkersPerHost = 5

// DefaultHostID is the id used in fallback results when no host can be
// selected.
const DefaultHostID = "__default__"

// Scored is one host's scoring detail, kept for observability (admin API,
// diagnostics) even for disqualified hosts.
type Scored struct {
	HostID      string
	Score       int
	Disqualified bool
	Reason      types.DisqualifyReason
}

// Result is the outcome of a Select call (spec §4.5 "Selection").
type Result struct {
	HostID string
	Reason types.PlacementReason
	Scored []Scored
}

// AffinityBonus counts a host's workers whose project_id matches the
// target and converts the count into a bonus (spec §4.5).
func AffinityBonus(host *registry.Host, projectID string) int {
	if projectID == "" {
		return 0
	}
	count := 0
	for _, b := range host.Workers {
		if b.ProjectID == projectID {
			count++
		}
	}
	switch {
	case count >= 3:
		return 10
	case count >= 1:
		return 5
	default:
		return 0
	}
}

// ScoreHost computes a single host's placement score and disqualification
// state (spec §4.5). disqualified hosts carry score -1.
func ScoreHost(host *registry.Host, projectID string) Scored {
	switch {
	case host.Status != types.HostActive:
		return Scored{HostID: host.ID, Score: -1, Disqualified: true, Reason: types.DisqualifyNotActive}
	case host.WorkerCount() >= MaxWorkersPerHost:
		return Scored{HostID: host.ID, Score: -1, Disqualified: true, Reason: types.DisqualifyAtCapacity}
	case host.Level() == types.HealthUnhealthy:
		return Scored{HostID: host.ID, Score: -1, Disqualified: true, Reason: types.DisqualifyUnhealthy}
	}

	score := host.HealthScore + (MaxWorkersPerHost-host.WorkerCount())*10 + AffinityBonus(host, projectID)
	return Scored{HostID: host.ID, Score: score}
}

// Select scores every host in the fleet and picks the best-qualified one
// (spec §4.5 "Selection" + fallback rules).
func Select(hosts []*registry.Host, projectID string) Result {
	if len(hosts) == 0 {
		return Result{HostID: DefaultHostID, Reason: types.ReasonNoHosts}
	}

	sorted := make([]*registry.Host, len(hosts))
	copy(sorted, hosts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	scored := make([]Scored, 0, len(sorted))
	var best *Scored
	for _, h := range sorted {
		s := ScoreHost(h, projectID)
		scored = append(scored, s)
		if s.Disqualified {
			continue
		}
		if best == nil || s.Score > best.Score {
			sCopy := s
			best = &sCopy
		}
	}

	if best == nil {
		return Result{HostID: DefaultHostID, Reason: types.ReasonAllDisqualified, Scored: scored}
	}

	return Result{HostID: best.HostID, Reason: types.ReasonSelected, Scored: scored}
}
