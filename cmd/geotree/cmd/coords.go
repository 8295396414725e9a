package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/spatial"
	"github.com/ssargent/geotree/pkg/spatial/query"
)

// parsePoint turns "1.5,2.0,3.25" into a scalar Point, one Coord per axis.
func parsePoint(raw string) (spatial.Point[float64], error) {
	fields := strings.Split(raw, ",")
	pt := make(spatial.Point[float64], len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		pt[i] = coord.Scalar(v)
	}
	return pt, nil
}

// parseBBox turns two comma-separated coordinate lists, "min" and "max",
// into a BBox, one interval per axis.
func parseBBox(minRaw, maxRaw string) (query.BBox[float64], error) {
	minFields := strings.Split(minRaw, ",")
	maxFields := strings.Split(maxRaw, ",")
	if len(minFields) != len(maxFields) {
		return nil, fmt.Errorf("min has %d axes, max has %d", len(minFields), len(maxFields))
	}
	bbox := make(query.BBox[float64], len(minFields))
	for i := range minFields {
		lo, err := strconv.ParseFloat(strings.TrimSpace(minFields[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("min axis %d: %w", i, err)
		}
		hi, err := strconv.ParseFloat(strings.TrimSpace(maxFields[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("max axis %d: %w", i, err)
		}
		bbox[i] = coord.Interval(lo, hi)
	}
	return bbox, nil
}
