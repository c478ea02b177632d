package aggregate

import (
	"fmt"
	"sort"

	"github.com/pedronipalhares/imea/internal/model"
)

// Partition is one crop x activity slice of the deduplicated set, sorted by
// date ascending.
type Partition struct {
	Crop     model.Crop
	Activity model.Activity
	Rows     []model.Row
}

func (p Partition) Name() string {
	return fmt.Sprintf("%s %s", p.Crop, p.Activity)
}

// SummaryRow is one pivoted observation: all three activity percentages for
// a date x crop x state x season. An activity not reported on that date is
// zero.
type SummaryRow struct {
	Date           string
	Year           int
	Month          int
	Crop           model.Crop
	State          string
	Season         string
	Planted        float64
	Harvested      float64
	Commercialized float64
}

// Report is the per-run summary surfaced at the end of a run.
type Report struct {
	TasksAttempted  int
	TasksSucceeded  int
	TasksFailed     int
	RawRows         int
	Dropped         map[string]int
	RowsAfterDedup  int
	PartitionCounts map[string]int
	Warnings        []string
}

// Dedup merges rows by the deduplication key keeping the highest percentage
// per key. Monthly windows re-report the same cumulative observation as it
// is refined upward, so the highest value is the latest refinement and the
// reduction is independent of task completion order. Output is sorted
// deterministically.
func Dedup(rows []model.Row) []model.Row {
	byKey := make(map[model.Key]model.Row, len(rows))
	for _, row := range rows {
		key := row.Key()
		if existing, ok := byKey[key]; ok && existing.Percentage >= row.Percentage {
			continue
		}
		byKey[key] = row
	}

	out := make([]model.Row, 0, len(byKey))
	for _, row := range byKey {
		out = append(out, row)
	}
	sortRows(out)
	return out
}

// Partitions splits deduplicated rows into the nine crop x activity
// datasets, in fixed crop-major order. Every partition is present even when
// empty so the caller can surface empty-partition warnings.
func Partitions(rows []model.Row) []Partition {
	index := make(map[model.Crop]map[model.Activity]int)
	partitions := make([]Partition, 0, len(model.Crops())*len(model.Activities()))
	for _, crop := range model.Crops() {
		index[crop] = make(map[model.Activity]int)
		for _, activity := range model.Activities() {
			index[crop][activity] = len(partitions)
			partitions = append(partitions, Partition{Crop: crop, Activity: activity})
		}
	}

	for _, row := range rows {
		activities, ok := index[row.Crop]
		if !ok {
			continue
		}
		i, ok := activities[row.Activity]
		if !ok {
			continue
		}
		partitions[i].Rows = append(partitions[i].Rows, row)
	}

	for i := range partitions {
		sortRows(partitions[i].Rows)
	}
	return partitions
}

// Summary pivots the deduplicated rows into one row per date x crop x
// state x season with the three activity percentages as columns.
func Summary(rows []model.Row) []SummaryRow {
	type pivotKey struct {
		date   string
		crop   model.Crop
		state  string
		season string
	}

	byKey := make(map[pivotKey]*SummaryRow)
	for _, row := range rows {
		key := pivotKey{date: row.Date.Format("2006-01-02"), crop: row.Crop, state: row.State, season: row.Season}
		entry, ok := byKey[key]
		if !ok {
			entry = &SummaryRow{
				Date:   key.date,
				Year:   row.Year,
				Month:  row.Month,
				Crop:   row.Crop,
				State:  row.State,
				Season: row.Season,
			}
			byKey[key] = entry
		}
		switch row.Activity {
		case model.ActivityPlanting:
			entry.Planted = row.Percentage
		case model.ActivityHarvest:
			entry.Harvested = row.Percentage
		case model.ActivityCommercialization:
			entry.Commercialized = row.Percentage
		}
	}

	out := make([]SummaryRow, 0, len(byKey))
	for _, entry := range byKey {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Crop != out[j].Crop {
			return out[i].Crop < out[j].Crop
		}
		return out[i].Season < out[j].Season
	})
	return out
}

// MonotonicityWarnings flags percentage decreases within a single
// (crop, activity, state, season) series. Cumulative progress should only
// grow; a decrease is a remote data-quality issue to surface, not fix.
func MonotonicityWarnings(rows []model.Row) []string {
	type seriesKey struct {
		crop     model.Crop
		activity model.Activity
		state    string
		season   string
	}

	series := make(map[seriesKey][]model.Row)
	for _, row := range rows {
		key := seriesKey{crop: row.Crop, activity: row.Activity, state: row.State, season: row.Season}
		series[key] = append(series[key], row)
	}

	warnings := make([]string, 0)
	for key, group := range series {
		sortRows(group)
		for i := 1; i < len(group); i++ {
			if group[i].Percentage < group[i-1].Percentage {
				warnings = append(warnings, fmt.Sprintf(
					"%s %s %s: percentage drops %.2f -> %.2f at %s",
					key.crop, key.activity, key.season,
					group[i-1].Percentage, group[i].Percentage,
					group[i].Date.Format("2006-01-02"),
				))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}

func sortRows(rows []model.Row) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		if rows[i].Crop != rows[j].Crop {
			return rows[i].Crop < rows[j].Crop
		}
		if rows[i].Activity != rows[j].Activity {
			return rows[i].Activity < rows[j].Activity
		}
		if rows[i].State != rows[j].State {
			return rows[i].State < rows[j].State
		}
		return rows[i].Season < rows[j].Season
	})
}
