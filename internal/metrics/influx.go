package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadhub/leadhub/internal/logging"
)

// InfluxConfig describes an InfluxDB v2 write target.
type InfluxConfig struct {
	URL      string
	Token    string
	Org      string
	Bucket   string
	Interval time.Duration
}

// StartInfluxPusher pushes the counter snapshot every interval until ctx is
// done. It returns immediately when URL or bucket is empty.
func StartInfluxPusher(ctx context.Context, cfg InfluxConfig) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	logging.Get().Info().Str("url", cfg.URL).Dur("interval", cfg.Interval).Msg("starting influxdb pusher")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	writeURL := influxWriteURL(cfg)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pushToInflux(ctx, client, writeURL, cfg.Token, time.Now())
		}
	}
}

func influxWriteURL(cfg InfluxConfig) string {
	q := url.Values{}
	q.Set("org", cfg.Org)
	q.Set("bucket", cfg.Bucket)
	q.Set("precision", "s")
	return strings.TrimRight(cfg.URL, "/") + "/api/v2/write?" + q.Encode()
}

// lineProtocol renders s as a single InfluxDB line.
func lineProtocol(s StatsSnapshot, at time.Time) string {
	return fmt.Sprintf(
		"leadhub notifications_sent=%di,notifications_failed=%di,webhooks_delivered=%di,webhooks_failed=%di,dispatch_skipped=%di,events_ingested=%di %d",
		s.NotificationsSent, s.NotificationsFailed, s.WebhooksDelivered, s.WebhooksFailed,
		s.DispatchSkipped, s.EventsIngested, at.Unix(),
	)
}

func pushToInflux(ctx context.Context, client *http.Client, writeURL, token string, at time.Time) {
	body := lineProtocol(GetSnapshot(), at)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, writeURL, bytes.NewReader([]byte(body)))
	if err != nil {
		logging.Get().Error().Err(err).Msg("influxdb request creation failed")
		return
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		logging.Get().Error().Err(err).Msg("influxdb push failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logging.Get().Warn().Int("status", resp.StatusCode).Msg("influxdb rejected metrics")
	}
}
