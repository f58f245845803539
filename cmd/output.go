package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/pipeline"
)

// Output formats accepted by --format.
const (
	FormatTable   = "table"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatGeoJSON = "geojson"
	FormatXLSX    = "xlsx"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	levelStyles = map[model.AmenityLevel]lipgloss.Style{
		model.AmenityHigh:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		model.AmenityModerate: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		model.AmenityLow:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	}
)

// renderResult writes res to w in format.
func renderResult(w io.Writer, format string, res *pipeline.Result) error {
	switch format {
	case FormatTable, "":
		return renderTable(w, res)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "output: encode yaml")
		}
		return enc.Close()
	case FormatGeoJSON:
		return renderGeoJSON(w, res)
	case FormatXLSX:
		return renderXLSX(w, res)
	default:
		return eris.Wrapf(model.ErrInvalidParameter, "output: unknown format %q", format)
	}
}

func renderTable(w io.Writer, res *pipeline.Result) error {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Center:"), res.Center)
	if res.RunID != "" {
		fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Run:"), res.RunID)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Name"),
		headerStyle.Render("Location"),
		headerStyle.Render("Status"),
		headerStyle.Render("Restaurants"),
		headerStyle.Render("Provisions"),
		headerStyle.Render("Cluster"),
		headerStyle.Render("Level"),
	)
	for _, r := range res.Records {
		restaurants := strconv.Itoa(r.RestaurantCount)
		if r.Partial {
			restaurants += subtleStyle.Render("*")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Name,
			r.Coordinate,
			r.BusinessStatus,
			restaurants,
			r.ProvisionsCount,
			r.ClusterID,
			levelStyles[r.AmenityLevel].Render(string(r.AmenityLevel)),
		)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "output: flush table")
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("Cluster"),
		headerStyle.Render("Size"),
		headerStyle.Render("Mean restaurants"),
		headerStyle.Render("Mean provisions"),
		headerStyle.Render("Level"),
	)
	for _, c := range res.Clusters {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%s\n",
			c.ClusterID, c.Size, c.MeanRestaurants, c.MeanProvisions,
			levelStyles[c.AmenityLevel].Render(string(c.AmenityLevel)),
		)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "output: flush table")
	}

	fmt.Fprintln(w, subtleStyle.Render(fmt.Sprintf(
		"%d nearby searches, %d geocodes, est. $%.3f",
		res.Usage.NearbyCalls, res.Usage.GeocodeCalls, res.Usage.CostUSD,
	)))
	return nil
}

func point(c model.Coordinate) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude})
}

// buildFeatureCollection returns one point per record plus the resolved
// center.
func buildFeatureCollection(res *pipeline.Result) *geojson.FeatureCollection {
	bounds := geom.NewBounds(geom.XY)
	features := make([]*geojson.Feature, 0, len(res.Records)+1)

	center := point(res.Center)
	bounds.Extend(center)
	features = append(features, &geojson.Feature{
		ID:       "center",
		Geometry: center,
		Properties: map[string]any{
			"role":         "center",
			"marker-color": "red",
		},
	})

	for _, r := range res.Records {
		p := point(r.Coordinate)
		bounds.Extend(p)
		features = append(features, &geojson.Feature{
			ID:       r.PlaceID,
			Geometry: p,
			Properties: map[string]any{
				"role":             "record",
				"name":             r.Name,
				"business_status":  string(r.BusinessStatus),
				"restaurant_count": r.RestaurantCount,
				"provisions_count": r.ProvisionsCount,
				"cluster_id":       r.ClusterID,
				"amenity_level":    string(r.AmenityLevel),
				"partial":          r.Partial,
				"marker-color":     r.AmenityLevel.Color(),
			},
		})
	}

	return &geojson.FeatureCollection{BBox: bounds, Features: features}
}

func renderGeoJSON(w io.Writer, res *pipeline.Result) error {
	data, err := json.MarshalIndent(buildFeatureCollection(res), "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: encode geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "output: write geojson")
	}
	return nil
}

var (
	recordHeaders  = []string{"Name", "Place ID", "Latitude", "Longitude", "Business status", "Restaurants", "Provisions", "Partial", "Cluster", "Amenity level"}
	clusterHeaders = []string{"Cluster", "Size", "Mean restaurants", "Mean provisions", "Amenity level", "Centroid latitude", "Centroid longitude"}
)

// buildWorkbook lays records and cluster summaries out on two sheets.
func buildWorkbook(res *pipeline.Result) (*xlsx.File, error) {
	f := xlsx.NewFile()

	records, err := f.AddSheet("Records")
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add records sheet")
	}
	addHeader(records, recordHeaders)
	for _, r := range res.Records {
		row := records.AddRow()
		row.AddCell().SetString(r.Name)
		row.AddCell().SetString(r.PlaceID)
		row.AddCell().SetFloat(r.Coordinate.Latitude)
		row.AddCell().SetFloat(r.Coordinate.Longitude)
		row.AddCell().SetString(string(r.BusinessStatus))
		row.AddCell().SetInt(r.RestaurantCount)
		row.AddCell().SetInt(r.ProvisionsCount)
		row.AddCell().SetBool(r.Partial)
		row.AddCell().SetInt(r.ClusterID)
		row.AddCell().SetString(string(r.AmenityLevel))
	}

	clusters, err := f.AddSheet("Clusters")
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add clusters sheet")
	}
	addHeader(clusters, clusterHeaders)
	for _, c := range res.Clusters {
		row := clusters.AddRow()
		row.AddCell().SetInt(c.ClusterID)
		row.AddCell().SetInt(c.Size)
		row.AddCell().SetFloat(c.MeanRestaurants)
		row.AddCell().SetFloat(c.MeanProvisions)
		row.AddCell().SetString(string(c.AmenityLevel))
		row.AddCell().SetFloat(c.Centroid.Latitude)
		row.AddCell().SetFloat(c.Centroid.Longitude)
	}

	return f, nil
}

func addHeader(sheet *xlsx.Sheet, headers []string) {
	row := sheet.AddRow()
	for _, h := range headers {
		row.AddCell().SetString(h)
	}
}

func renderXLSX(w io.Writer, res *pipeline.Result) error {
	f, err := buildWorkbook(res)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}
