// Package converter forwards raw accounting exports to the external
// pre-invoice conversion service.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/config"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed upstream answer is relayed
const maxErrorBody = 4 << 10

// Client talks to the converter
type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

// NewClient creates a converter client. An empty URL leaves it disabled.
func NewClient(cfg config.ConverterConfig, log *zap.Logger) *Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &Client{
		url: strings.TrimSpace(cfg.URL),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext:     dialer.DialContext,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		log: log.Named("converter"),
	}
}

// Enabled reports whether a converter URL is configured
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Process posts body (a multipart form, as received) to the converter and
// returns the converted workbook stream. The caller closes it. Cancelling
// ctx aborts the outbound request.
func (c *Client) Process(ctx context.Context, contentType string, body io.Reader) (io.ReadCloser, error) {
	if !c.Enabled() {
		return nil, apperr.Unavailable("invoice converter is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, apperr.Internal("failed to build converter request", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.log.Error("❌ Converter unreachable", zap.Error(err))
		return nil, apperr.Unavailable("invoice converter is unreachable")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = "processing failed"
		}
		c.log.Warn("Converter rejected upload", zap.Int("status", resp.StatusCode), zap.String("body", text))
		return nil, apperr.Upstream("converter returned %d: %s", resp.StatusCode, text)
	}

	c.log.Info("🔄 Converter finished", zap.Duration("took", time.Since(start)))
	return resp.Body, nil
}

// String is used in startup logs
func (c *Client) String() string {
	if !c.Enabled() {
		return "converter(disabled)"
	}
	return fmt.Sprintf("converter(%s)", c.url)
}
