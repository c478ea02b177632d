package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pedronipalhares/imea/internal/aggregate"
	"github.com/pedronipalhares/imea/internal/model"
)

const (
	SummaryFileName = "BR_IMEA_CROP_PERCENTAGE_PROGRESS.csv"
	QuotesFileName  = "BR_IMEA_CURRENT_PRICES.csv"
)

var progressHeader = []string{"date", "year", "month", "crop", "state", "harvest_season", "percentage"}

var summaryHeader = []string{
	"date", "year", "month", "crop", "state", "harvest_season",
	"planted_percentage", "harvested_percentage", "commercialized_percentage",
}

var quotesHeader = []string{"chain", "locality", "harvest_season", "value", "variation", "unit", "published_at"}

// PartitionFileName returns the dataset file name for one crop x activity,
// e.g. BR_IMEA_SOY_PLANTING_PERCENTAGE.csv.
func PartitionFileName(crop model.Crop, activity model.Activity) string {
	return fmt.Sprintf("BR_IMEA_%s_%s_PERCENTAGE.csv",
		strings.ToUpper(string(crop)), strings.ToUpper(string(activity)))
}

// WriteDatasets writes the nine partition files plus the pivoted summary
// under dir, creating it if needed. Empty partitions still produce a file
// with only the header row so every run yields the same fixed file set.
// Returns per-file row counts.
func WriteDatasets(dir string, partitions []aggregate.Partition, summary []aggregate.SummaryRow) (map[string]int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	counts := make(map[string]int, len(partitions)+1)
	for _, partition := range partitions {
		name := PartitionFileName(partition.Crop, partition.Activity)
		if err := writePartition(filepath.Join(dir, name), partition.Rows); err != nil {
			return nil, err
		}
		counts[name] = len(partition.Rows)
	}

	if err := writeSummary(filepath.Join(dir, SummaryFileName), summary); err != nil {
		return nil, err
	}
	counts[SummaryFileName] = len(summary)

	return counts, nil
}

// WriteQuotes writes current-price records to their own dataset file.
func WriteQuotes(dir string, quotes []model.Quote) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeCSV(filepath.Join(dir, QuotesFileName), quotesHeader, len(quotes), func(i int) []string {
		quote := quotes[i]
		publishedAt := ""
		if !quote.PublishedAt.IsZero() {
			publishedAt = quote.PublishedAt.Format("2006-01-02")
		}
		return []string{
			string(quote.Chain),
			quote.Locality,
			quote.Season,
			formatFloat(quote.Value),
			formatFloat(quote.Variation),
			quote.Unit,
			publishedAt,
		}
	})
}

func writePartition(path string, rows []model.Row) error {
	return writeCSV(path, progressHeader, len(rows), func(i int) []string {
		row := rows[i]
		return []string{
			row.Date.Format("2006-01-02"),
			strconv.Itoa(row.Year),
			strconv.Itoa(row.Month),
			string(row.Crop),
			row.State,
			row.Season,
			formatFloat(row.Percentage),
		}
	})
}

func writeSummary(path string, rows []aggregate.SummaryRow) error {
	return writeCSV(path, summaryHeader, len(rows), func(i int) []string {
		row := rows[i]
		return []string{
			row.Date,
			strconv.Itoa(row.Year),
			strconv.Itoa(row.Month),
			string(row.Crop),
			row.State,
			row.Season,
			formatFloat(row.Planted),
			formatFloat(row.Harvested),
			formatFloat(row.Commercialized),
		}
	})
}

func writeCSV(path string, header []string, n int, record func(i int) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(record(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
