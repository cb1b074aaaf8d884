package settings

import (
	"context"
	"log"
	"time"

	"gear-lending-api/internal/models"
)

// Reader fetches the settings singleton from its backing store.
type Reader interface {
	ReadSettings(ctx context.Context) (models.Settings, error)
}

// Provider supplies the current operating parameters to validation code.
// It never blocks past its timeout and never returns an error: a slow or
// unavailable settings store degrades to the hardcoded defaults so a
// configuration outage cannot block all bookings.
type Provider struct {
	reader   Reader
	timeout  time.Duration
	defaults models.Settings
}

// NewProvider wraps a reader with a fetch timeout and fallback defaults.
func NewProvider(reader Reader, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Provider{
		reader:   reader,
		timeout:  timeout,
		defaults: models.DefaultSettings(),
	}
}

// Settings returns the stored settings, or the defaults on timeout/error.
func (p *Provider) Settings(ctx context.Context) models.Settings {
	if p.reader == nil {
		return p.defaults
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	s, err := p.reader.ReadSettings(ctx)
	if err != nil {
		log.Printf("settings: falling back to defaults: %v", err)
		return p.defaults
	}
	return s
}

// Static returns a provider that always yields the given settings. Used in
// tests and tools that must not touch the database.
func Static(s models.Settings) *Provider {
	return &Provider{reader: staticReader{s}, timeout: time.Second, defaults: s}
}

type staticReader struct{ s models.Settings }

func (r staticReader) ReadSettings(context.Context) (models.Settings, error) {
	return r.s, nil
}
