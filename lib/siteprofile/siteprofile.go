// Package siteprofile holds the structure of the booking site as data:
// selectors, button labels and phrase lists. The upstream markup drifts
// regularly, so all of it lives in a watched config file and takes
// effect without a restart.
package siteprofile

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Selectors locate the pieces of markup the probe depends on. The
// extractor fields are CSS selectors (goquery); the driver fields are
// XPath fragments because the driver matches on element text.
type Selectors struct {
	// accordion headers carrying one calendar date each (CSS)
	DateHeader string `mapstructure:"date_header"`
	// clickable time slot controls inside a date panel (CSS)
	TimeSlot string `mapstructure:"time_slot"`
	// element name of the rows on the service selection step
	ServiceRow string `mapstructure:"service_row"`
	// quantity spinner relative to a service row (XPath fragment)
	QuantityInput string `mapstructure:"quantity_input"`
}

type Profile struct {
	BaseURL string `mapstructure:"base_url"`
	// label of the continue button between form steps
	ContinueLabel string `mapstructure:"continue_label"`
	// candidate labels for the optional cookie consent button,
	// tried in order, absence of all of them is fine
	ConsentLabels []string `mapstructure:"consent_labels"`
	// candidate labels for the optional confirmation dialog
	InterstitialLabels []string `mapstructure:"interstitial_labels"`
	// locale specific "no appointments available" phrases
	NoSlotPhrases []string `mapstructure:"no_slot_phrases"`
	Selectors     Selectors `mapstructure:"selectors"`
}

func Default() Profile {
	return Profile{
		BaseURL:       "https://termine.duesseldorf.de/select2?md=3",
		ContinueLabel: "Weiter",
		ConsentLabels: []string{
			"Akzeptieren",
			"Alle akzeptieren",
			"Zustimmen",
			"OK",
		},
		InterstitialLabels: []string{
			"OK",
			"Fortfahren",
			"Bestätigen",
		},
		NoSlotPhrases: []string{
			"Zurzeit sind keine Termine frei",
			"Zurzeit sind keine Termine verfügbar",
			"Leider sind derzeit keine Termine verfügbar",
			"Es sind zurzeit keine Termine verfügbar",
			"Aktuell sind keine Termine buchbar",
			"Keine Zeiten verfügbar",
			"keine freien Termine",
		},
		Selectors: Selectors{
			DateHeader:    "h3.ui-accordion-header",
			TimeSlot:      "button.suggest_btn, td button",
			ServiceRow:    "li",
			QuantityInput: `.//input[@type="number"]`,
		},
	}
}

// Source serves the profile currently in effect. Reads are lock-free,
// reloads swap the whole snapshot.
type Source struct {
	current atomic.Pointer[Profile]
}

// Static wraps a fixed profile, used by tests and one-off CLI probes.
func Static(p Profile) *Source {
	s := &Source{}
	s.current.Store(&p)
	return s
}

// Watch loads the profile from path and keeps it reloaded on file
// changes. A reload that fails to parse keeps the previous snapshot.
func Watch(path string) (*Source, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := Default()
	v.SetDefault("base_url", defaults.BaseURL)
	v.SetDefault("continue_label", defaults.ContinueLabel)
	v.SetDefault("consent_labels", defaults.ConsentLabels)
	v.SetDefault("interstitial_labels", defaults.InterstitialLabels)
	v.SetDefault("no_slot_phrases", defaults.NoSlotPhrases)
	v.SetDefault("selectors.date_header", defaults.Selectors.DateHeader)
	v.SetDefault("selectors.time_slot", defaults.Selectors.TimeSlot)
	v.SetDefault("selectors.service_row", defaults.Selectors.ServiceRow)
	v.SetDefault("selectors.quantity_input", defaults.Selectors.QuantityInput)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read site profile: %w", err)
	}

	s := &Source{}
	profile, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	s.current.Store(profile)

	v.OnConfigChange(func(e fsnotify.Event) {
		reloaded, err := unmarshal(v)
		if err != nil {
			slog.Error("site profile reload failed, keeping previous", "file", e.Name, "err", err)
			return
		}
		s.current.Store(reloaded)
		slog.Info("site profile reloaded", "file", e.Name)
	})
	v.WatchConfig()

	return s, nil
}

func unmarshal(v *viper.Viper) (*Profile, error) {
	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("unmarshal site profile: %w", err)
	}
	if p.BaseURL == "" {
		return nil, fmt.Errorf("site profile: base_url must not be empty")
	}
	return &p, nil
}

func (s *Source) Current() Profile {
	return *s.current.Load()
}
