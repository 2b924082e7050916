// Package fetch implements the default fetch-transform collaborator using
// Colly for transport and goquery for HTML extraction.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/linkmill/linkmill/internal/pipeline"
)

const defaultTimeout = 15 * time.Second

// Config controls fetch behavior.
type Config struct {
	UserAgent string
	// Proxy is an optional proxy URL applied to every fetch.
	Proxy string
	// Timeout bounds one fetch attempt end to end.
	Timeout time.Duration
}

// Extractor implements pipeline.Extractor: GET the link, then turn the
// response into flat records (HTML tables, or a JSON array of flat
// objects).
type Extractor struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) (*Extractor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.Proxy != "" {
		if err := c.SetProxy(cfg.Proxy); err != nil {
			return nil, fmt.Errorf("set proxy %s: %w", cfg.Proxy, err)
		}
	}
	return &Extractor{cfg: cfg, base: c, logger: logger}, nil
}

// Extract performs one fetch attempt and transforms the response.
func (e *Extractor) Extract(ctx context.Context, link pipeline.Link) (pipeline.RecordSet, error) {
	var (
		body        []byte
		contentType string
		status      int
		fetchErr    error
	)
	collector := e.base.Clone()
	if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}
	collector.SetRequestTimeout(e.cfg.Timeout)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("%s: %w", http.StatusText(r.StatusCode), err)
			return
		}
		fetchErr = err
	})

	if err := e.visit(ctx, collector, link.URI); err != nil {
		return pipeline.RecordSet{}, err
	}
	if fetchErr != nil {
		return pipeline.RecordSet{}, fmt.Errorf("fetch %s: %w", link.URI, fetchErr)
	}
	e.logger.Debug("fetched",
		zap.String("uri", link.URI),
		zap.Int("status", status),
		zap.Int("bytes", len(body)),
	)

	rs, err := Transform(link, contentType, body)
	if err != nil {
		return pipeline.RecordSet{}, fmt.Errorf("extract %s: %w", link.URI, err)
	}
	return rs, nil
}

func (e *Extractor) visit(ctx context.Context, collector *colly.Collector, uri string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(uri)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", uri, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Transform picks the parser by content type. JSON responses must be an
// array of flat objects; anything else is treated as HTML and mined for
// its first table.
func Transform(link pipeline.Link, contentType string, body []byte) (pipeline.RecordSet, error) {
	if strings.Contains(contentType, "json") {
		return parseJSON(link, body)
	}
	return parseHTMLTable(link, body)
}
