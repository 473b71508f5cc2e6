// Package export writes tender rankings for spreadsheets and other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/tendering/core/scoring"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Write encodes r in the given format.
func Write(w io.Writer, f Format, r scoring.Ranking) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// WriteJSON writes the ranking to w in JSON format.
func WriteJSON(w io.Writer, r scoring.Ranking) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV writes one row per ranked bid. Sub-scores follow the fixed columns
// in rule order, one column per criterion.
func WriteCSV(w io.Writer, r scoring.Ranking) error {
	cw := csv.NewWriter(w)
	header := []string{"rank", "carrier_id", "bid_id", "total_cost", "transit_days", "rating", "on_time_rate", "score", "eligible", "submitted_at"}
	if len(r.Results) > 0 {
		for _, s := range r.Results[0].SubScores {
			header = append(header, "score_"+string(s.Criterion))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, res := range r.Results {
		rec := []string{
			strconv.Itoa(i + 1),
			res.CarrierID,
			res.BidID,
			strconv.FormatFloat(res.TotalCost, 'f', 2, 64),
			strconv.FormatFloat(res.TransitDays, 'f', -1, 64),
			strconv.FormatFloat(res.Rating, 'f', -1, 64),
			strconv.FormatFloat(res.OnTimeRate, 'f', -1, 64),
			strconv.FormatFloat(res.Score, 'f', 4, 64),
			strconv.FormatBool(res.Eligible),
			res.SubmittedAt.UTC().Format(time.RFC3339),
		}
		for _, s := range res.SubScores {
			rec = append(rec, strconv.FormatFloat(s.Value, 'f', 4, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
