// Package geocode は都市検索のためのジオコーディングAPIクライアントを提供する。
// Open-Meteo形式の検索エンドポイントを呼び出し、レート制限とサーキットブレーカーで保護する。
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hitoshi/wakr/internal/metrics"
)

const (
	// DefaultEndpoint はOpen-Meteoのジオコーディング検索エンドポイント。
	DefaultEndpoint = "https://geocoding-api.open-meteo.com/v1/search"
	// MinQueryLength は検索語の最小文字数。
	MinQueryLength = 2
	// maxQueryLength は上流へ送る検索語の最大文字数。
	maxQueryLength = 100
	// maxResults は1回の検索で返す最大件数。
	maxResults = 10
	// maxResponseSize はレスポンスボディの最大サイズ。
	maxResponseSize = 1 << 20
)

var (
	// ErrQueryTooShort は検索語が短すぎることを示す。
	ErrQueryTooShort = errors.New("geocode: query too short")
	// ErrUpstream は上流APIの呼び出しに失敗したことを示す。
	ErrUpstream = errors.New("geocode: upstream failure")
)

// Place は検索結果の1地点を表す。
type Place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

// searchResponse はOpen-Meteoの検索レスポンス。該当なしの場合resultsは省略される。
type searchResponse struct {
	Results []Place `json:"results"`
}

// Config はClientの設定。
type Config struct {
	Endpoint          string
	RequestsPerSecond float64
	Burst             int
	// MaxFailures は連続失敗でブレーカーを開く閾値。
	MaxFailures uint32
	// OpenTimeout はブレーカーが開いてから半開状態に移るまでの時間。
	OpenTimeout time.Duration
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		Endpoint:          DefaultEndpoint,
		RequestsPerSecond: 5,
		Burst:             10,
		MaxFailures:       5,
		OpenTimeout:       30 * time.Second,
	}
}

// Searcher は都市検索のインターフェース。
type Searcher interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// Client はジオコーディングAPIのクライアント。
// httpClientには本番ではSSRF対策済みのクライアントを渡す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	collector  metrics.MetricsCollector
	endpoint   string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, cfg Config, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        "geocode",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		collector:  collector,
		endpoint:   cfg.Endpoint,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:    gobreaker.NewCircuitBreaker(st),
	}
}

// Search は検索語に一致する都市を返す。
// 検索語が2文字未満の場合はErrQueryTooShort、上流の失敗はErrUpstreamをラップして返す。
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	runes := []rune(query)
	if len(runes) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	if len(runes) > maxQueryLength {
		query = string(runes[:maxQueryLength])
	}

	start := time.Now()
	places, err := c.search(ctx, query)
	result := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "circuit_open"
	case err != nil:
		result = "error"
	}
	c.collector.RecordGeocodeRequest(result, time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return places, nil
}

func (c *Client) search(ctx context.Context, query string) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レート制限の待機に失敗しました: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Place), nil
}

// fetch は上流APIを1回呼び出す。
func (c *Client) fetch(ctx context.Context, query string) ([]Place, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("name", query)
	q.Set("count", strconv.Itoa(maxResults))
	q.Set("language", "en")
	q.Set("format", "json")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Wakr/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ジオコーディングAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ジオコーディングAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("ジオコーディングAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Error("ジオコーディングAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	places := make([]Place, 0, len(parsed.Results))
	for _, p := range parsed.Results {
		if p.Name == "" {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

// compile-time interface check
var _ Searcher = (*Client)(nil)
