// Package domain defines the core market-data types shared across the
// platform: OHLCV bars, tradable instruments, and chart timeframes.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Bar is a single OHLCV bar. Timestamp is Unix milliseconds; the bar width
// is determined by the timeframe it was requested with.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Instrument describes one tradable symbol from the instrument catalog.
type Instrument struct {
	Ticker    string `json:"ticker"`
	Name      string `json:"name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
	Exchange  string `json:"exchange,omitempty"`
	AssetType string `json:"asset_type,omitempty"`
}

// Matches reports whether the instrument matches a search term by
// case-insensitive substring containment against ticker, name, and short
// name. An empty term matches everything.
func (i Instrument) Matches(term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(i.Ticker), term) ||
		strings.Contains(strings.ToLower(i.Name), term) ||
		strings.Contains(strings.ToLower(i.ShortName), term)
}

// Unit is the base unit of a chart timeframe.
type Unit string

// Timeframe units. Month and year use upper-case codes so they do not
// collide with minute and the (unused) lower-case "y".
const (
	UnitMinute Unit = "m"
	UnitHour   Unit = "h"
	UnitDay    Unit = "d"
	UnitWeek   Unit = "w"
	UnitMonth  Unit = "M"
	UnitYear   Unit = "Y"
)

var validUnits = map[Unit]bool{
	UnitMinute: true,
	UnitHour:   true,
	UnitDay:    true,
	UnitWeek:   true,
	UnitMonth:  true,
	UnitYear:   true,
}

// Valid reports whether u is one of the defined timeframe units.
func (u Unit) Valid() bool { return validUnits[u] }

// Timeframe is a bar width expressed as a multiplier of a base unit,
// e.g. {15, minute} or {1, day}.
type Timeframe struct {
	Multiplier int
	Unit       Unit
}

// Code returns the wire encoding of the timeframe, e.g. "15m", "1d", "1M".
func (tf Timeframe) Code() string {
	return strconv.Itoa(tf.Multiplier) + string(tf.Unit)
}

// Validate checks the timeframe has a positive multiplier and a known unit.
func (tf Timeframe) Validate() error {
	if tf.Multiplier <= 0 {
		return fmt.Errorf("timeframe multiplier must be positive, got %d", tf.Multiplier)
	}
	if !tf.Unit.Valid() {
		return fmt.Errorf("unknown timeframe unit %q", tf.Unit)
	}
	return nil
}

// ParseTimeframe parses a wire code like "15m" or "1M" back into a
// Timeframe. The unit is the trailing single character and is case
// sensitive: "m" is minute, "M" is month.
func ParseTimeframe(code string) (Timeframe, error) {
	if len(code) < 2 {
		return Timeframe{}, fmt.Errorf("invalid timeframe code %q", code)
	}
	unit := Unit(code[len(code)-1:])
	if !unit.Valid() {
		return Timeframe{}, fmt.Errorf("unknown timeframe unit in %q", code)
	}
	mult, err := strconv.Atoi(code[:len(code)-1])
	if err != nil || mult <= 0 {
		return Timeframe{}, fmt.Errorf("invalid timeframe multiplier in %q", code)
	}
	return Timeframe{Multiplier: mult, Unit: unit}, nil
}

// Catalog is the full instrument catalog as returned by the backend.
type Catalog struct {
	Count       int          `json:"count"`
	Instruments []Instrument `json:"instruments"`
	LastUpdated string       `json:"lastUpdated,omitempty"`
}
