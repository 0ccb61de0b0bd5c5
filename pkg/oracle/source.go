// Package oracle feeds daily sea-ice extent measurements into the contract.
// A Source supplies the latest reading; the Submitter decides whether and
// when to submit it.
package oracle

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sealcoin/seal/pkg/contract"
)

var ErrNoReading = errors.New("oracle: no reading in source data")

// Reading is one daily measurement, extent in thousand km².
type Reading struct {
	Date      time.Time `json:"date"`
	DayOfYear uint32    `json:"day_of_year"`
	Extent    uint32    `json:"extent"`
}

// Source supplies the most recent reading.
type Source interface {
	Latest(ctx context.Context) (Reading, error)
}

// NSIDCSource reads the NSIDC daily extent CSV over HTTP.
type NSIDCSource struct {
	URL    string
	Client *http.Client
}

func NewNSIDCSource(url string) *NSIDCSource {
	return &NSIDCSource{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *NSIDCSource) Latest(ctx context.Context) (Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Reading{}, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("oracle: fetch %s: %w", s.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Reading{}, fmt.Errorf("oracle: fetch %s: status %d", s.URL, resp.StatusCode)
	}
	return ParseNSIDC(resp.Body)
}

// ParseNSIDC returns the last dated row of an NSIDC daily extent CSV
// ("Year, Month, Day, Extent, Missing, Source Data"). Header and unit rows
// are skipped, as are rows whose extent is not finite, negative, or above
// contract.MaxExtent once converted. Extent is given in million km² and
// converted to thousand km².
func ParseNSIDC(r io.Reader) (Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var (
		latest Reading
		found  bool
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Reading{}, fmt.Errorf("oracle: parse csv: %w", err)
		}
		rd, ok := parseRow(rec)
		if !ok {
			continue
		}
		if !found || !rd.Date.Before(latest.Date) {
			latest, found = rd, true
		}
	}
	if !found {
		return Reading{}, ErrNoReading
	}
	return latest, nil
}

func parseRow(rec []string) (Reading, bool) {
	if len(rec) < 4 {
		return Reading{}, false
	}
	var ymd [3]int
	for i := range ymd {
		n, err := strconv.Atoi(strings.TrimSpace(rec[i]))
		if err != nil {
			return Reading{}, false
		}
		ymd[i] = n
	}
	extent, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err != nil || math.IsNaN(extent) || math.IsInf(extent, 0) || extent < 0 {
		return Reading{}, false
	}
	scaled := math.Round(extent * 1000)
	if scaled > float64(contract.MaxExtent) {
		return Reading{}, false
	}
	date := time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC)
	if date.Year() != ymd[0] || int(date.Month()) != ymd[1] || date.Day() != ymd[2] {
		return Reading{}, false
	}
	return Reading{
		Date:      date,
		DayOfYear: uint32(date.YearDay()),
		Extent:    uint32(scaled),
	}, true
}

// StaticSource always returns the same reading.
type StaticSource Reading

func (s StaticSource) Latest(context.Context) (Reading, error) { return Reading(s), nil }
