package marketdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"vela/internal/domain"
)

// Envelope keys probed, in priority order, when the response body is a JSON
// object rather than a bare array.
var envelopeKeys = []string{"data", "results", "ohlcv", "values"}

// decodeSeries normalizes a backend OHLCV response into bars. Two envelopes
// are supported (a bare top-level array, or an object holding the array
// under one of envelopeKeys) and two record shapes (the legacy tuple
// [ts,o,h,l,c,v] and the named-field object). The result is sorted
// ascending by timestamp.
func decodeSeries(body []byte) ([]domain.Bar, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var items []json.RawMessage

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		raw, ok := findSeriesKey(envelope)
		if !ok {
			return nil, fmt.Errorf("%w: no recognized series key", ErrMalformedResponse)
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: series key is not an array: %v", ErrMalformedResponse, err)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected top-level token", ErrMalformedResponse)
	}

	bars := make([]domain.Bar, 0, len(items))
	for i, item := range items {
		bar, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedResponse, i, err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	return bars, nil
}

// unmarshalCatalog decodes the instrument catalog response.
func unmarshalCatalog(body []byte, catalog *domain.Catalog) error {
	if err := json.Unmarshal(body, catalog); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if catalog.Instruments == nil {
		return fmt.Errorf("%w: catalog has no instruments field", ErrMalformedResponse)
	}
	return nil
}

// findSeriesKey returns the first envelope key present in the object.
func findSeriesKey(envelope map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, key := range envelopeKeys {
		if raw, ok := envelope[key]; ok {
			return raw, true
		}
	}
	return nil, false
}

// namedRecord is the newer named-field wire shape. The timestamp field has
// appeared under several names across backend versions.
type namedRecord struct {
	UnixTime  *int64  `json:"unix_time"`
	Timestamp *int64  `json:"timestamp"`
	Time      *int64  `json:"time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// decodeRecord decodes one series element, detecting the record shape from
// its leading token.
func decodeRecord(item json.RawMessage) (domain.Bar, error) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 {
		return domain.Bar{}, fmt.Errorf("empty record")
	}

	switch trimmed[0] {
	case '[':
		var tuple []json.Number
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return domain.Bar{}, err
		}
		if len(tuple) < 6 {
			return domain.Bar{}, fmt.Errorf("tuple has %d fields, want 6", len(tuple))
		}
		ts, err := tuple[0].Int64()
		if err != nil {
			return domain.Bar{}, fmt.Errorf("tuple timestamp: %v", err)
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := tuple[i+1].Float64()
			if err != nil {
				return domain.Bar{}, fmt.Errorf("tuple field %d: %v", i+1, err)
			}
			vals[i] = v
		}
		return domain.Bar{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		}, nil

	case '{':
		var rec namedRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return domain.Bar{}, err
		}
		var ts int64
		switch {
		case rec.UnixTime != nil:
			ts = *rec.UnixTime
		case rec.Timestamp != nil:
			ts = *rec.Timestamp
		case rec.Time != nil:
			ts = *rec.Time
		default:
			return domain.Bar{}, fmt.Errorf("record has no timestamp field")
		}
		return domain.Bar{
			Timestamp: ts,
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		}, nil
	}

	return domain.Bar{}, fmt.Errorf("unrecognized record shape")
}
