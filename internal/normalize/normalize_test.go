package normalize

import (
	"testing"
	"time"

	"github.com/pedronipalhares/imea/internal/model"
)

func soyPlantingTask() model.Task {
	return model.Task{
		Indicator: model.Indicator{ID: "1", Crop: model.CropSoy, Activity: model.ActivityPlanting},
		Year:      2024,
		Month:     time.January,
	}
}

func TestRecords_MapsKnownFields(t *testing.T) {
	records := []map[string]any{
		{
			"Data":             "2024-01-15T00:00:00",
			"Valor":            42.5,
			"EstadoId":         float64(51),
			"SafraDescricao":   "Safra 2023/24",
			"UnidadeDescricao": "Percentual",
		},
	}

	rows, dropped := Records(soyPlantingTask(), records)
	if len(dropped) != 0 {
		t.Fatalf("unexpected drops: %v", dropped)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Crop != model.CropSoy || row.Activity != model.ActivityPlanting {
		t.Errorf("crop/activity = %s/%s, want Soy/Planting", row.Crop, row.Activity)
	}
	if got := row.Date.Format("2006-01-02"); got != "2024-01-15" {
		t.Errorf("date = %s, want 2024-01-15", got)
	}
	if row.Year != 2024 || row.Month != 1 {
		t.Errorf("year/month = %d/%d, want 2024/1", row.Year, row.Month)
	}
	if row.State != "Mato Grosso" {
		t.Errorf("state = %q, want Mato Grosso", row.State)
	}
	if row.Season != "Safra 2023/24" {
		t.Errorf("season = %q, want Safra 2023/24", row.Season)
	}
	if row.Percentage != 42.5 {
		t.Errorf("percentage = %v, want 42.5", row.Percentage)
	}
}

func TestRecords_DateIsAuthoritative(t *testing.T) {
	// separate year/month fields disagree with the date; the date wins
	records := []map[string]any{
		{"Data": "2023-12-30", "Valor": "10", "Ano": float64(2024), "Mes": float64(2)},
	}

	rows, _ := Records(soyPlantingTask(), records)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Year != 2023 || rows[0].Month != 12 {
		t.Errorf("year/month = %d/%d, want 2023/12 (derived from date)", rows[0].Year, rows[0].Month)
	}
}

func TestRecords_DropReasons(t *testing.T) {
	cases := []struct {
		name   string
		record map[string]any
		reason string
	}{
		{"missing date", map[string]any{"Valor": 10.0}, DropMissingDate},
		{"bad date", map[string]any{"Data": "15/01/2024", "Valor": 10.0}, DropBadDate},
		{"bad percentage", map[string]any{"Data": "2024-01-15", "Valor": "n/a"}, DropBadPercentage},
		{"missing percentage", map[string]any{"Data": "2024-01-15"}, DropBadPercentage},
		{"non percentage unit", map[string]any{"Data": "2024-01-15", "Valor": 10.0, "UnidadeDescricao": "R$/saca"}, DropNotPercentage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, dropped := Records(soyPlantingTask(), []map[string]any{tc.record})
			if len(rows) != 0 {
				t.Fatalf("expected record to be dropped, got %d rows", len(rows))
			}
			if dropped[tc.reason] != 1 {
				t.Errorf("dropped = %v, want one %s", dropped, tc.reason)
			}
		})
	}
}

func TestRecords_NumericStringPercentage(t *testing.T) {
	records := []map[string]any{
		{"Data": "2024-01-15", "Valor": "87.3"},
	}

	rows, dropped := Records(soyPlantingTask(), records)
	if len(dropped) != 0 {
		t.Fatalf("unexpected drops: %v", dropped)
	}
	if len(rows) != 1 || rows[0].Percentage != 87.3 {
		t.Fatalf("expected one row with percentage 87.3, got %+v", rows)
	}
}

func TestSeasonLabel(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"2023-09-01", "Safra 2023/24"},
		{"2023-12-31", "Safra 2023/24"},
		{"2024-01-01", "Safra 2023/24"},
		{"2024-08-31", "Safra 2023/24"},
		{"2024-09-01", "Safra 2024/25"},
		{"2021-01-15", "Safra 2020/21"},
	}

	for _, tc := range cases {
		date, err := time.Parse("2006-01-02", tc.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := SeasonLabel(date); got != tc.want {
			t.Errorf("SeasonLabel(%s) = %q, want %q", tc.date, got, tc.want)
		}
	}
}

func TestSeasonLabel_UniformAcrossAgronomicYear(t *testing.T) {
	// every month from September 2023 through August 2024 is Safra 2023/24
	current := time.Date(2023, time.September, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		if got := SeasonLabel(current); got != "Safra 2023/24" {
			t.Errorf("SeasonLabel(%s) = %q, want Safra 2023/24", current.Format("2006-01"), got)
		}
		current = current.AddDate(0, 1, 0)
	}
}

func TestRecords_RemoteSeasonLabelWins(t *testing.T) {
	records := []map[string]any{
		{"Data": "2024-01-15", "Valor": 10.0, "SafraDescricao": "Safra 2022/23"},
	}

	rows, _ := Records(soyPlantingTask(), records)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Season != "Safra 2022/23" {
		t.Errorf("season = %q, want remote label Safra 2022/23", rows[0].Season)
	}
}

func TestQuotes(t *testing.T) {
	records := []map[string]any{
		{
			"Localidade":       "Sorriso",
			"Valor":            132.4,
			"Variacao":         -1.2,
			"Safra":            "Safra 2023/24",
			"UnidadeDescricao": "R$/saca",
			"DataPublicacao":   "2024-06-10T00:00:00",
		},
		{"Localidade": "Cuiaba"}, // no value
	}

	quotes, dropped := Quotes(model.CropSoy, records)
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}

	quote := quotes[0]
	if quote.Chain != model.CropSoy {
		t.Errorf("chain = %s, want Soy", quote.Chain)
	}
	if quote.Value != 132.4 || quote.Variation != -1.2 {
		t.Errorf("value/variation = %v/%v, want 132.4/-1.2", quote.Value, quote.Variation)
	}
	if got := quote.PublishedAt.Format("2006-01-02"); got != "2024-06-10" {
		t.Errorf("published at = %s, want 2024-06-10", got)
	}
}
