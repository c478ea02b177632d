package imea

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pedronipalhares/imea/internal/model"
	"github.com/pedronipalhares/imea/internal/providers"
)

const (
	defaultBaseURL        = "https://api1.imea.com.br"
	defaultAuthPath       = "/token"
	defaultSeasonsPath    = "/api/safra/seriehistoricageral"
	defaultSeriesPath     = "/api/seriehistorica"
	defaultQuotesPath     = "/api/v2/mobile/cadeias/{chain}/cotacoes"
	defaultClientID       = "2"
	defaultLocalityType   = "1"
	defaultPageSize       = 1000
	defaultTimeoutSeconds = 30
	defaultMaxRetries     = 1
	defaultUserAgent      = "imea-extractor/0.1"
)

var ErrAuthentication = errors.New("imea: authentication failed")

// Config holds connection settings for the IMEA API. Credentials are
// required; everything else has a working default.
type Config struct {
	BaseURL      string
	AuthPath     string
	SeasonsPath  string
	SeriesPath   string
	QuotesPath   string
	Username     string
	Password     string
	ClientID     string
	LocalityType string
	PageSize     int
	Timeout      time.Duration
	MaxRetries   int
	UserAgent    string
	// InsecureTLS relaxes certificate verification for this client only.
	// The IMEA portal serves a non-standard chain; no other network
	// interaction in the process is affected.
	InsecureTLS bool
}

type Client struct {
	config Config
	client *http.Client

	mu      sync.Mutex
	token   string
	seasons []model.Season
}

func New() (*Client, error) {
	return NewWithConfig(ConfigFromEnv())
}

func NewWithConfig(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil, errors.New("imea: username and password are required (IMEA_USERNAME, IMEA_PASSWORD)")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.AuthPath) == "" {
		cfg.AuthPath = defaultAuthPath
	}
	if strings.TrimSpace(cfg.SeasonsPath) == "" {
		cfg.SeasonsPath = defaultSeasonsPath
	}
	if strings.TrimSpace(cfg.SeriesPath) == "" {
		cfg.SeriesPath = defaultSeriesPath
	}
	if strings.TrimSpace(cfg.QuotesPath) == "" {
		cfg.QuotesPath = defaultQuotesPath
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = defaultClientID
	}
	if strings.TrimSpace(cfg.LocalityType) == "" {
		cfg.LocalityType = defaultLocalityType
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:      getenv("IMEA_BASE_URL", defaultBaseURL),
		AuthPath:     getenv("IMEA_AUTH_PATH", defaultAuthPath),
		SeasonsPath:  getenv("IMEA_SEASONS_PATH", defaultSeasonsPath),
		SeriesPath:   getenv("IMEA_SERIES_PATH", defaultSeriesPath),
		QuotesPath:   getenv("IMEA_QUOTES_PATH", defaultQuotesPath),
		Username:     strings.TrimSpace(os.Getenv("IMEA_USERNAME")),
		Password:     strings.TrimSpace(os.Getenv("IMEA_PASSWORD")),
		ClientID:     getenv("IMEA_CLIENT_ID", defaultClientID),
		LocalityType: getenv("IMEA_LOCALITY_TYPE", defaultLocalityType),
		PageSize:     getenvInt("IMEA_PAGE_SIZE", defaultPageSize),
		Timeout:      time.Duration(getenvInt("IMEA_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second,
		MaxRetries:   getenvInt("IMEA_MAX_RETRIES", defaultMaxRetries),
		UserAgent:    getenv("IMEA_USER_AGENT", defaultUserAgent),
		InsecureTLS:  getenvBool("IMEA_INSECURE_TLS", true),
	}
}

func (c *Client) Name() string {
	return "imea"
}

// Authenticate exchanges the configured credentials for a session token.
// Any failure here is terminal for the run.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)
	form.Set("grant_type", "password")
	form.Set("client_id", c.config.ClientID)

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + c.config.AuthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s: %s", ErrAuthentication, resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: decode token response: %v", ErrAuthentication, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return fmt.Errorf("%w: no access token in response", ErrAuthentication)
	}

	c.mu.Lock()
	c.token = payload.AccessToken
	c.mu.Unlock()
	return nil
}

// ListSeasons fetches the available harvest seasons. The returned ids are
// cached and attached to subsequent series requests.
func (c *Client) ListSeasons(ctx context.Context) ([]model.Season, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + c.config.SeasonsPath
	params := url.Values{}
	params.Set("pageSize", "100")
	params.Set("page", "1")

	body, err := c.doGet(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	rows, err := extractRows(body)
	if err != nil {
		return nil, err
	}

	seasons := make([]model.Season, 0, len(rows))
	for _, row := range rows {
		id, ok := getString(row, "Id", "id")
		if !ok {
			continue
		}
		name, _ := getString(row, "Nome", "nome", "name")
		seasons = append(seasons, model.Season{ID: id, Name: name})
	}

	c.mu.Lock()
	c.seasons = seasons
	c.mu.Unlock()
	return seasons, nil
}

// FetchSeries retrieves the raw records for one indicator-month task.
// An empty result is not an error; the remote series may genuinely have no
// observations in that window.
func (c *Client) FetchSeries(ctx context.Context, task model.Task) ([]map[string]any, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + c.config.SeriesPath

	params := url.Values{}
	params.Set("indicador", task.Indicator.ID)
	params.Set("tipolocalidade", c.config.LocalityType)
	params.Set("inicio", task.Start.Format("2006-01-02"))
	params.Set("fim", task.End.Format("2006-01-02"))
	params.Set("pageSize", strconv.Itoa(c.config.PageSize))
	for _, season := range c.cachedSeasons() {
		params.Add("safra", season.ID)
	}

	body, err := c.doGet(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return extractRows(body)
}

// FetchQuotes retrieves current price records for one crop chain.
func (c *Client) FetchQuotes(ctx context.Context, chain model.Crop) ([]map[string]any, error) {
	id := model.ChainID(chain)
	if id == "" {
		return nil, fmt.Errorf("imea: no price chain for crop %s", chain)
	}
	path := strings.ReplaceAll(c.config.QuotesPath, "{chain}", url.PathEscape(id))
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path

	body, err := c.doGet(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return extractRows(body)
}

func (c *Client) cachedSeasons() []model.Season {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]model.Season, len(c.seasons))
	copy(copied, c.seasons)
	return copied
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) doGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	token := c.bearer()
	if token == "" {
		return nil, fmt.Errorf("%w: no session token", ErrAuthentication)
	}

	uri := endpoint
	if len(params) > 0 {
		uri = endpoint + "?" + params.Encode()
	}

	attempts := c.config.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, time.Second); err != nil {
				return nil, err
			}
		}

		body, status, err := c.doOnce(ctx, uri, token)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(status, err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, uri, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, fmt.Errorf("imea: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, nil
}

// retryable reports whether the failure is worth one more attempt: server
// errors, timeouts, and connection drops are; client errors are not.
func retryable(status int, err error) bool {
	if status == 0 {
		return err != nil
	}
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func extractRows(body []byte) ([]map[string]any, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("imea: decode response: %w", err)
	}
	return rowsFromPayload(payload)
}

func rowsFromPayload(payload any) ([]map[string]any, error) {
	switch typed := payload.(type) {
	case []any:
		return toRowList(typed), nil
	case map[string]any:
		for _, key := range []string{"data", "Data", "items", "Items", "results", "Results"} {
			if raw, ok := typed[key]; ok {
				return rowsFromPayload(raw)
			}
		}
		return nil, errors.New("imea: unexpected response shape")
	case nil:
		return []map[string]any{}, nil
	default:
		return nil, errors.New("imea: unexpected response type")
	}
}

func toRowList(items []any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows
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

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}

var _ providers.Provider = (*Client)(nil)
