// Package window implements the first-crossing sliding-window primitive both
// detectors are built on. Windows are half-open [t, t+T): an event exactly T
// after the window start falls outside it.
package window

import (
	"sort"
	"time"
)

// Entry is one (key, timestamp, payload) tuple fed to the aggregator.
type Entry[P any] struct {
	Key       string
	Timestamp time.Time
	Payload   P
}

// Detection anchors the earliest window in which a key's count first reached
// the threshold. Count and Evidence cover every entry inside that anchored
// window, not just the first threshold entries. At most one Detection is
// produced per key per pass.
type Detection[P any] struct {
	Key         string
	WindowStart time.Time
	WindowEnd   time.Time
	Count       int
	Evidence    []P
}

// FirstCrossing reports, per key, the first half-open window of length
// `window` whose raw entry count reaches `threshold`. Entries need not be
// presorted; per key they are stably sorted by timestamp so ties keep their
// input order. Keys appear in the result in first-appearance order.
func FirstCrossing[P any](entries []Entry[P], window time.Duration, threshold int) []Detection[P] {
	if threshold <= 0 || window <= 0 {
		return nil
	}

	grouped, order := groupByKey(entries)

	var detections []Detection[P]
	for _, key := range order {
		run := grouped[key]
		if len(run) < threshold {
			continue
		}

		left := 0
		for right := 0; right < len(run); right++ {
			for run[right].Timestamp.Sub(run[left].Timestamp) >= window {
				left++
			}
			if right-left+1 >= threshold {
				// The detected window is anchored at run[left]; report every
				// entry that falls inside it, not just the crossing prefix.
				end := right + 1
				for end < len(run) && run[end].Timestamp.Sub(run[left].Timestamp) < window {
					end++
				}
				detections = append(detections, buildDetection(key, run[left:end]))
				break
			}
		}
	}
	return detections
}

// FirstCrossingDistinct is the variant that counts distinct payload keys
// (per keyFn) inside the live window rather than raw entries. Repeated
// occurrences of the same payload key never advance the count.
func FirstCrossingDistinct[P any](entries []Entry[P], window time.Duration, threshold int, keyFn func(P) string) []Detection[P] {
	if threshold <= 0 || window <= 0 {
		return nil
	}

	grouped, order := groupByKey(entries)

	var detections []Detection[P]
	for _, key := range order {
		run := grouped[key]
		if len(run) < threshold {
			continue
		}

		// Multiset of payload keys currently in the window.
		inWindow := make(map[string]int)
		left := 0
		for right := 0; right < len(run); right++ {
			inWindow[keyFn(run[right].Payload)]++
			for run[right].Timestamp.Sub(run[left].Timestamp) >= window {
				k := keyFn(run[left].Payload)
				inWindow[k]--
				if inWindow[k] == 0 {
					delete(inWindow, k)
				}
				left++
			}
			if len(inWindow) >= threshold {
				// Extend to the full anchored window so the reported distinct
				// set covers everything inside it.
				end := right + 1
				for end < len(run) && run[end].Timestamp.Sub(run[left].Timestamp) < window {
					inWindow[keyFn(run[end].Payload)]++
					end++
				}
				d := buildDetection(key, run[left:end])
				d.Count = len(inWindow)
				detections = append(detections, d)
				break
			}
		}
	}
	return detections
}

func groupByKey[P any](entries []Entry[P]) (map[string][]Entry[P], []string) {
	grouped := make(map[string][]Entry[P])
	var order []string
	for _, e := range entries {
		if _, seen := grouped[e.Key]; !seen {
			order = append(order, e.Key)
		}
		grouped[e.Key] = append(grouped[e.Key], e)
	}
	for _, run := range grouped {
		sort.SliceStable(run, func(i, j int) bool {
			return run[i].Timestamp.Before(run[j].Timestamp)
		})
	}
	return grouped, order
}

func buildDetection[P any](key string, run []Entry[P]) Detection[P] {
	evidence := make([]P, len(run))
	for i, e := range run {
		evidence[i] = e.Payload
	}
	return Detection[P]{
		Key:         key,
		WindowStart: run[0].Timestamp,
		WindowEnd:   run[len(run)-1].Timestamp,
		Count:       len(run),
		Evidence:    evidence,
	}
}
