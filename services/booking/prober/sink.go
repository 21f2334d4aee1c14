package prober

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"terminwatch/lib/telemetry"
	"terminwatch/lib/timezone"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
)

// Sink accepts one labeled diagnostic image per probe attempt.
// Implementations must treat failures as their caller does: worth a
// log line, never worth failing the probe.
type Sink interface {
	Store(ctx context.Context, label string, png []byte) (string, error)
}

// FileSink writes screenshots into a local directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Store(ctx context.Context, label string, png []byte) (string, error) {
	err := os.MkdirAll(s.Dir, 0755)
	if err != nil {
		return "", err
	}

	// suffix keeps two probes finishing within the same second apart
	nonce, err := random.String(6)
	if err != nil {
		nonce = "000000"
	}
	name := fmt.Sprintf("%s_%s_%s.png", label, timezone.Now().Format("20060102_150405"), nonce)
	path := filepath.Join(s.Dir, name)

	err = os.WriteFile(path, png, 0644)
	if err != nil {
		return "", err
	}
	return path, nil
}

// HTTPSink posts screenshots to a collector endpoint.
type HTTPSink struct {
	client *resty.Client
}

func NewHTTPSink(endpoint string) HTTPSink {
	client := resty.New()
	client.SetBaseURL(endpoint)
	client.SetTimeout(time.Second * 10)
	telemetry.InstrumentResty(client, "prober/diagnostics")
	return HTTPSink{client: client}
}

func (s HTTPSink) Store(ctx context.Context, label string, png []byte) (string, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/png").
		SetQueryParam("label", label).
		SetBody(png).
		Post("/screenshots")
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("diagnostics collector returned %s", res.Status())
	}
	return res.String(), nil
}
