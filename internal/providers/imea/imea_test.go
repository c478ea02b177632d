package imea

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pedronipalhares/imea/internal/model"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:  baseURL,
		Username: "user@example.com",
		Password: "secret",
	}
}

func soyTask() model.Task {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return model.Task{
		Indicator: model.Indicator{ID: "708192508889268224", Crop: model.CropSoy, Activity: model.ActivityPlanting},
		Year:      2024,
		Month:     time.January,
		Start:     start,
		End:       start.AddDate(0, 1, -1),
	}
}

func authHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("auth method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("grant_type") != "password" {
			t.Errorf("grant_type = %q, want password", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("username") != "user@example.com" {
			t.Errorf("username = %q", r.PostForm.Get("username"))
		}
		fmt.Fprint(w, `{"access_token":"tok-123"}`)
	}
}

func TestAuthenticate_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	err = client.Authenticate(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestAuthenticate_MissingToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestFetchSeries_SendsTokenAndParams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	mux.HandleFunc("/api/seriehistorica", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "bearer tok-123" {
			t.Errorf("authorization = %q, want bearer tok-123", got)
		}
		query := r.URL.Query()
		if got := query.Get("indicador"); got != "708192508889268224" {
			t.Errorf("indicador = %q", got)
		}
		if got := query.Get("tipolocalidade"); got != "1" {
			t.Errorf("tipolocalidade = %q, want 1", got)
		}
		if got := query.Get("inicio"); got != "2024-01-01" {
			t.Errorf("inicio = %q, want 2024-01-01", got)
		}
		if got := query.Get("fim"); got != "2024-01-31" {
			t.Errorf("fim = %q, want 2024-01-31", got)
		}
		fmt.Fprint(w, `[{"Data":"2024-01-15","Valor":10.5}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, err := client.FetchSeries(context.Background(), soyTask())
	if err != nil {
		t.Fatalf("fetch series: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestFetchSeries_AcceptsWrappedPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	mux.HandleFunc("/api/seriehistorica", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"Data":"2024-01-15","Valor":1},{"Data":"2024-01-22","Valor":2}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, err := client.FetchSeries(context.Background(), soyTask())
	if err != nil {
		t.Fatalf("fetch series: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestFetchSeries_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	mux.HandleFunc("/api/seriehistorica", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"Data":"2024-01-15","Valor":10.5}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 1
	client, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, err := client.FetchSeries(context.Background(), soyTask())
	if err != nil {
		t.Fatalf("fetch series after retry: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", got)
	}
}

func TestFetchSeries_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	mux.HandleFunc("/api/seriehistorica", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 1
	client, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := client.FetchSeries(context.Background(), soyTask()); err == nil {
		t.Fatal("expected error on 403")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (client errors are terminal)", got)
	}
}

func TestFetchSeries_RequiresAuthentication(t *testing.T) {
	client, err := NewWithConfig(testConfig("http://127.0.0.1:0"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchSeries(context.Background(), soyTask()); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication without token, got %v", err)
	}
}

func TestListSeasons_FeedsSeriesRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	mux.HandleFunc("/api/safra/seriehistoricageral", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"Id":"s1","Nome":"Safra 2023/24"},{"Id":"s2","Nome":"Safra 2024/25"}]}`)
	})
	mux.HandleFunc("/api/seriehistorica", func(w http.ResponseWriter, r *http.Request) {
		seasons := r.URL.Query()["safra"]
		if len(seasons) != 2 || seasons[0] != "s1" || seasons[1] != "s2" {
			t.Errorf("safra params = %v, want [s1 s2]", seasons)
		}
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	seasons, err := client.ListSeasons(context.Background())
	if err != nil {
		t.Fatalf("list seasons: %v", err)
	}
	if len(seasons) != 2 || seasons[0].Name != "Safra 2023/24" {
		t.Fatalf("unexpected seasons: %+v", seasons)
	}

	if _, err := client.FetchSeries(context.Background(), soyTask()); err != nil {
		t.Fatalf("fetch series with seasons: %v", err)
	}
}

func TestFetchQuotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", authHandler(t))
	mux.HandleFunc("/api/v2/mobile/cadeias/4/cotacoes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"Localidade":"Sorriso","Valor":132.4}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewWithConfig(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, err := client.FetchQuotes(context.Background(), model.CropSoy)
	if err != nil {
		t.Fatalf("fetch quotes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestNewWithConfig_RequiresCredentials(t *testing.T) {
	if _, err := NewWithConfig(Config{BaseURL: "https://api1.imea.com.br"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}
