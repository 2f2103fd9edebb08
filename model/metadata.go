package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/siherrmann/narrative/helper"
)

// Metadata represents JSONB metadata stored in PostgreSQL
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	return m.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes or Metadata to Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	if s, ok := value.(Metadata); ok {
		*m = Metadata(s)
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, m)
}

// Metrics represents per-platform engagement counters (likes, shares, ...)
// stored as JSONB.
type Metrics map[string]float64

func (m Metrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metrics) Scan(value interface{}) error {
	if value == nil {
		*m = Metrics{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, m)
}

// EntitySet groups extracted entities by kind (cashtag, hashtag, mention, url)
// and is stored as JSONB.
type EntitySet map[string][]string

func (e EntitySet) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *EntitySet) Scan(value interface{}) error {
	if value == nil {
		*e = EntitySet{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, e)
}

// SourceShares maps a source platform to its fractional share of a window,
// stored as JSONB. Shares over one window sum to 1 unless the window is empty.
type SourceShares map[string]float64

func (s SourceShares) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *SourceShares) Scan(value interface{}) error {
	if value == nil {
		*s = SourceShares{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, s)
}
