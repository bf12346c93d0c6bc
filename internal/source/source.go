// Package source selects where glucose readings come from.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jwulff/glucostatus/internal/dexcom"
	"github.com/jwulff/glucostatus/internal/glucose"
	"github.com/jwulff/glucostatus/internal/nightscout"
)

// DefaultLookback covers the longest delta bucket and a full smoothing
// window with room for gaps.
const DefaultLookback = 150 * time.Minute

// Source yields a newest-first snapshot of recent readings.
type Source interface {
	Name() string
	Readings(ctx context.Context, lookback time.Duration) ([]glucose.Reading, error)
}

// Kind names a source implementation.
const (
	KindDexcom     = "dexcom"
	KindNightscout = "nightscout"
)

// ErrNotConfigured is returned when no source has credentials.
var ErrNotConfigured = errors.New("no glucose source configured: set Dexcom credentials or a Nightscout URL")

// Settings holds the credentials of every supported source.
type Settings struct {
	Kind string

	DexcomUsername string
	DexcomPassword string
	DexcomOUS      bool

	NightscoutURL    string
	NightscoutToken  string
	NightscoutSecret string
}

// FromEnv fills unset fields from the environment.
func (s Settings) FromEnv() Settings {
	fill := func(v *string, key string) {
		if *v == "" {
			*v = os.Getenv(key)
		}
	}
	fill(&s.DexcomUsername, "DEXCOM_USERNAME")
	fill(&s.DexcomPassword, "DEXCOM_PASSWORD")
	fill(&s.NightscoutURL, "NIGHTSCOUT_URL")
	fill(&s.NightscoutToken, "NIGHTSCOUT_TOKEN")
	fill(&s.NightscoutSecret, "NIGHTSCOUT_SECRET")
	return s
}

// New builds the source named by s.Kind. With no kind, Dexcom wins when its
// credentials are present, then Nightscout.
func New(s Settings) (Source, error) {
	kind := s.Kind
	if kind == "" {
		switch {
		case s.DexcomUsername != "" && s.DexcomPassword != "":
			kind = KindDexcom
		case s.NightscoutURL != "":
			kind = KindNightscout
		default:
			return nil, ErrNotConfigured
		}
	}

	switch kind {
	case KindDexcom:
		if s.DexcomUsername == "" || s.DexcomPassword == "" {
			return nil, fmt.Errorf("dexcom source needs DEXCOM_USERNAME and DEXCOM_PASSWORD")
		}
		client := dexcom.NewClient(s.DexcomUsername, s.DexcomPassword)
		if s.DexcomOUS {
			client.BaseURL = dexcom.BaseURLOUS
		}
		return client, nil
	case KindNightscout:
		if s.NightscoutURL == "" {
			return nil, fmt.Errorf("nightscout source needs NIGHTSCOUT_URL")
		}
		return nightscout.NewClient(s.NightscoutURL, s.NightscoutSecret, s.NightscoutToken), nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}
