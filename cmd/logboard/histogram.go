package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
	"github.com/tinytelemetry/logboard/internal/report"
)

// histogramResponse mirrors the JSON body of GET /logs/histogram.
type histogramResponse struct {
	Histogram []model.SeverityCount `json:"histogram"`
	Filters   struct {
		StartDate *string `json:"start_date"`
		EndDate   *string `json:"end_date"`
		Source    *string `json:"source"`
	} `json:"filters"`
}

// runHistogram fetches the severity histogram from a running server and
// renders it as a bar chart.
func runHistogram(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("histogram", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default is $HOME/.config/logboard/config.yml)")
	addr := fs.String("addr", "", "server address (default is the configured api-addr)")
	start := fs.String("start", "", "include records at or after this timestamp")
	end := fs.String("end", "", "include records at or before this timestamp")
	source := fs.String("source", "", "only count records from this source")
	width := fs.Int("width", 100, "chart width in columns")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *addr
	if target == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		target = cfg.APIAddr
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := fetchHistogram(ctx, http.DefaultClient, target, *start, *end, *source)
	if err != nil {
		return err
	}
	return report.RenderHistogram(out, res, *width)
}

func fetchHistogram(ctx context.Context, client *http.Client, addr, start, end, source string) (model.HistogramResult, error) {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/logs/histogram")
	if err != nil {
		return model.HistogramResult{}, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	q := u.Query()
	for k, v := range map[string]string{"start_date": start, "end_date": end, "source": source} {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.HistogramResult{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.HistogramResult{}, fmt.Errorf("cannot reach logboard at %s: %w\nIs the server running? Start it with: logboard", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			return model.HistogramResult{}, fmt.Errorf("server returned %s", resp.Status)
		}
		return model.HistogramResult{}, errors.New(body.Error)
	}

	var payload histogramResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.HistogramResult{}, fmt.Errorf("decoding histogram: %w", err)
	}

	res := model.HistogramResult{Buckets: payload.Histogram}
	if s := payload.Filters.StartDate; s != nil {
		if t, err := query.ParseTimestamp(*s); err == nil {
			res.Start = &t
		}
	}
	if s := payload.Filters.EndDate; s != nil {
		if t, err := query.ParseTimestamp(*s); err == nil {
			res.End = &t
		}
	}
	if payload.Filters.Source != nil {
		res.Source = *payload.Filters.Source
	}
	return res, nil
}
