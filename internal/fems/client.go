package fems

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/lox/firetrends/internal/httputil"
	"github.com/lox/firetrends/internal/metrics"
	"github.com/lox/firetrends/internal/models"
)

const (
	// DefaultURL is the FEMS climatology GraphQL endpoint.
	DefaultURL = "https://fems.fs2c.usda.gov/api/climatology/graphql"
	// DefaultFuelModel is the NFDRS fuel model the percentile tables were built for.
	DefaultFuelModel = "Y"
	Endpoint         = "nfdrMinMax"
)

// FetchResult describes one feed call for the run audit.
type FetchResult struct {
	Readings     []models.Reading
	Raw          []byte
	HTTPStatus   int
	ResponseSize int
	TotalCount   int
	PageCount    int
	ParseErrors  int
	ParseError   string
}

// Client fetches daily NFDRS min/max values for every station from FEMS.
type Client struct {
	httpClient *http.Client
	url        string
	fuelModel  string
}

func NewClient(url, fuelModel string) *Client {
	if url == "" {
		url = DefaultURL
	}
	if fuelModel == "" {
		fuelModel = DefaultFuelModel
	}
	return &Client{
		httpClient: httputil.NewClient(),
		url:        url,
		fuelModel:  fuelModel,
	}
}

// Query builds the nfdrMinMax GraphQL query for the date range, all stations.
func (c *Client) Query(start, end time.Time) string {
	return fmt.Sprintf(`query NfdrMinMax {
  nfdrMinMax(
    startDate: %q,
    endDate: %q,
    fuelModels: %q
    stationIds: ""
  ) {
    _metadata {
      page
      per_page
      total_count
      page_count
    }
    data {
      station_id
      summary_date
      nfdr_type
      fuel_model
      energy_release_component_max
      burning_index_max
    }
  }
}`, start.Format("2006-01-02"), end.Format("2006-01-02"), c.fuelModel)
}

// Fetch runs one request. Rate limiting and server errors are retryable;
// other client errors and undecodable bodies are wrapped in backoff.Permanent.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) (*FetchResult, error) {
	result := &FetchResult{}

	payload, err := json.Marshal(map[string]string{"query": c.Query(start, end)})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("encode query: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "firetrends/1.0")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.FeedLatency.WithLabelValues("fems").Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.FeedCallsTotal.WithLabelValues("fems", "error").Inc()
		return result, fmt.Errorf("fetch nfdr: %w", err)
	}
	defer resp.Body.Close()

	result.HTTPStatus = resp.StatusCode
	metrics.FeedCallsTotal.WithLabelValues("fems", strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("read body: %w", err)
	}
	result.Raw = body
	result.ResponseSize = len(body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return result, fmt.Errorf("fetch nfdr: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return result, backoff.Permanent(fmt.Errorf("fetch nfdr: status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	if err := c.parse(body, result); err != nil {
		return result, err
	}
	metrics.ReadingsFetched.Add(float64(len(result.Readings)))
	return result, nil
}

func (c *Client) parse(body []byte, result *FetchResult) error {
	if !gjson.ValidBytes(body) {
		return backoff.Permanent(fmt.Errorf("decode response: invalid json"))
	}

	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return fmt.Errorf("graphql: %s", errs.Array()[0].Get("message").String())
	}

	root := gjson.GetBytes(body, "data."+Endpoint)
	data := root.Get("data")
	if !data.IsArray() {
		return fmt.Errorf("graphql: response has no %s data", Endpoint)
	}
	result.TotalCount = int(root.Get("_metadata.total_count").Int())
	result.PageCount = int(root.Get("_metadata.page_count").Int())

	data.ForEach(func(_, rec gjson.Result) bool {
		r, err := parseReading(rec)
		if err != nil {
			result.ParseErrors++
			if result.ParseError == "" {
				result.ParseError = err.Error()
			}
			return true
		}
		result.Readings = append(result.Readings, r)
		return true
	})
	return nil
}

func parseReading(rec gjson.Result) (models.Reading, error) {
	stationID := rec.Get("station_id").String()
	if stationID == "" {
		return models.Reading{}, fmt.Errorf("record missing station_id")
	}
	dateStr := rec.Get("summary_date").String()
	if len(dateStr) < 10 {
		return models.Reading{}, fmt.Errorf("station %s: bad summary_date %q", stationID, dateStr)
	}
	date, err := time.Parse("2006-01-02", dateStr[:10])
	if err != nil {
		return models.Reading{}, fmt.Errorf("station %s: parse summary_date: %w", stationID, err)
	}
	return models.Reading{
		StationID: stationID,
		Date:      date,
		NFDRType:  rec.Get("nfdr_type").String(),
		FuelModel: rec.Get("fuel_model").String(),
		ERC:       nullFloat(rec.Get("energy_release_component_max")),
		BI:        nullFloat(rec.Get("burning_index_max")),
	}, nil
}

func nullFloat(v gjson.Result) sql.NullFloat64 {
	switch v.Type {
	case gjson.Number:
		return sql.NullFloat64{Float64: v.Float(), Valid: true}
	case gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return sql.NullFloat64{Float64: f, Valid: true}
		}
	}
	return sql.NullFloat64{}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
