package pipeline

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/pkg/places"
)

// DropReason explains why an entry was not extracted.
type DropReason string

// Drop reasons reported by ExtractWithReport.
const (
	DropMissingName     DropReason = "missing_name"
	DropMissingStatus   DropReason = "missing_business_status"
	DropMissingLocation DropReason = "missing_location"
	DropOutOfRange      DropReason = "coordinate_out_of_range"
)

// Extract converts raw search entries into candidate records. Entries
// missing a name, business status, latitude or longitude are dropped, as are
// entries whose coordinate is out of range. Order is preserved.
func Extract(entries []places.RawEntry) []model.CandidateRecord {
	out, drops := ExtractWithReport(entries)
	if len(drops) > 0 {
		zap.L().Debug("pipeline: dropped malformed entries",
			zap.Int("kept", len(out)),
			zap.Any("dropped", drops),
		)
	}
	return out
}

// ExtractWithReport is Extract plus a count of dropped entries per reason.
func ExtractWithReport(entries []places.RawEntry) ([]model.CandidateRecord, map[DropReason]int) {
	out := make([]model.CandidateRecord, 0, len(entries))
	drops := map[DropReason]int{}

	for _, e := range entries {
		rec, reason, ok := extractOne(e)
		if !ok {
			drops[reason]++
			continue
		}
		out = append(out, rec)
	}
	return out, drops
}

func extractOne(e places.RawEntry) (model.CandidateRecord, DropReason, bool) {
	if e.Name == nil {
		return model.CandidateRecord{}, DropMissingName, false
	}
	name := norm.NFC.String(strings.TrimSpace(*e.Name))
	if name == "" {
		return model.CandidateRecord{}, DropMissingName, false
	}
	if e.BusinessStatus == nil {
		return model.CandidateRecord{}, DropMissingStatus, false
	}
	if e.Geometry == nil || e.Geometry.Location == nil ||
		e.Geometry.Location.Lat == nil || e.Geometry.Location.Lng == nil {
		return model.CandidateRecord{}, DropMissingLocation, false
	}

	c := model.Coordinate{Latitude: *e.Geometry.Location.Lat, Longitude: *e.Geometry.Location.Lng}
	if !c.Valid() {
		return model.CandidateRecord{}, DropOutOfRange, false
	}

	return model.CandidateRecord{
		PlaceID:        e.PlaceID,
		Name:           name,
		Coordinate:     c,
		BusinessStatus: model.ParseBusinessStatus(*e.BusinessStatus),
	}, "", true
}
