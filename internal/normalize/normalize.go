package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pedronipalhares/imea/internal/model"
)

// Drop reasons for malformed records. Dropped records are counted per
// reason and surfaced in the run report; they never abort the pipeline.
const (
	DropMissingDate   = "missing_date"
	DropBadDate       = "bad_date"
	DropBadPercentage = "bad_percentage"
	DropNotPercentage = "not_percentage"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Records maps the raw records of one task into normalized rows. The crop
// and activity come from the task's indicator, one mapping per known
// variant. Malformed records are dropped with a counted reason.
func Records(task model.Task, records []map[string]any) ([]model.Row, map[string]int) {
	rows := make([]model.Row, 0, len(records))
	dropped := make(map[string]int)

	for _, record := range records {
		row, reason := rowFromRecord(task.Indicator, record)
		if reason != "" {
			dropped[reason]++
			continue
		}
		rows = append(rows, row)
	}
	return rows, dropped
}

func rowFromRecord(indicator model.Indicator, record map[string]any) (model.Row, string) {
	raw, ok := getString(record, "Data", "data", "Date")
	if !ok {
		return model.Row{}, DropMissingDate
	}
	date, err := parseDate(raw)
	if err != nil {
		return model.Row{}, DropBadDate
	}

	if unit, ok := getString(record, "UnidadeDescricao", "unidadeDescricao"); ok {
		if !strings.EqualFold(unit, "Percentual") {
			return model.Row{}, DropNotPercentage
		}
	}

	percentage, ok := getFloat(record, "Valor", "valor", "Value")
	if !ok {
		return model.Row{}, DropBadPercentage
	}

	stateID, _ := getString(record, "EstadoId", "estadoId")
	season, ok := getString(record, "SafraDescricao", "safraDescricao")
	if !ok {
		season = SeasonLabel(date)
	}

	// The date field is authoritative: year and month always derive from
	// it, even when the payload carries separate (possibly disagreeing)
	// year/month fields.
	return model.Row{
		Date:       date,
		Year:       date.Year(),
		Month:      int(date.Month()),
		Crop:       indicator.Crop,
		Activity:   indicator.Activity,
		State:      model.StateName(stateID),
		Season:     season,
		Percentage: percentage,
	}, ""
}

// SeasonLabel computes the harvest-season label for a date. A season
// "Safra Y/Y+1" runs from September of year Y through August of year Y+1.
// Remote-provided labels take precedence; this is the fallback rule.
func SeasonLabel(date time.Time) string {
	year := date.Year()
	if date.Month() < time.September {
		year--
	}
	return fmt.Sprintf("Safra %d/%02d", year, (year+1)%100)
}

// Quotes maps raw current-price records for one crop chain into quotes.
// Records without a numeric value are dropped.
func Quotes(chain model.Crop, records []map[string]any) ([]model.Quote, int) {
	quotes := make([]model.Quote, 0, len(records))
	dropped := 0

	for _, record := range records {
		value, ok := getFloat(record, "Valor", "valor", "Value")
		if !ok {
			dropped++
			continue
		}
		quote := model.Quote{
			Chain: chain,
			Value: value,
		}
		quote.Locality, _ = getString(record, "Localidade", "localidade")
		quote.Season, _ = getString(record, "Safra", "safra")
		quote.Unit, _ = getString(record, "UnidadeDescricao", "unidadeDescricao")
		quote.Variation, _ = getFloat(record, "Variacao", "variacao")
		if raw, ok := getString(record, "DataPublicacao", "dataPublicacao"); ok {
			if published, err := parseDate(raw); err == nil {
				quote.PublishedAt = published
			}
		}
		quotes = append(quotes, quote)
	}
	return quotes, dropped
}

func parseDate(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func getString(row map[string]any, keys ...string) (string, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	default:
		return "", false
	}
}

func getFloat(row map[string]any, keys ...string) (float64, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case float64:
		return typed, true
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func getValue(row map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok {
			return value, true
		}
	}
	for rowKey, value := range row {
		for _, key := range keys {
			if strings.EqualFold(rowKey, key) {
				return value, true
			}
		}
	}
	return nil, false
}
