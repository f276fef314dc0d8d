package view

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/sitecast/internal/models"
)

// SeriesPoint is one predicted value in a chart series.
type SeriesPoint struct {
	Time  time.Time
	Value float64
	Lower *float64
	Upper *float64
}

// Series holds the points of one site, or the portfolio total for SiteID 0.
type Series struct {
	SiteID int64
	Name   string
	Points []SeriesPoint
}

// GroupSeries groups result rows by site id. Series are ordered by site id
// and points by time. names supplies labels; missing names fall back to
// "Site N", and SiteID 0 is labelled "Portfolio total".
func GroupSeries(rows []models.ForecastResult, names map[int64]string) []Series {
	bySite := make(map[int64]*Series)
	var order []int64
	for _, r := range rows {
		s, ok := bySite[r.SiteID]
		if !ok {
			s = &Series{SiteID: r.SiteID, Name: seriesName(r.SiteID, names)}
			bySite[r.SiteID] = s
			order = append(order, r.SiteID)
		}
		p := SeriesPoint{Time: r.ForecastDatetime, Value: r.PredictedGenerationMWh.Float()}
		if r.ConfidenceIntervalLower != nil {
			v := r.ConfidenceIntervalLower.Float()
			p.Lower = &v
		}
		if r.ConfidenceIntervalUpper != nil {
			v := r.ConfidenceIntervalUpper.Float()
			p.Upper = &v
		}
		s.Points = append(s.Points, p)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Series, 0, len(order))
	for _, id := range order {
		s := bySite[id]
		sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Time.Before(s.Points[j].Time) })
		out = append(out, *s)
	}
	return out
}

func seriesName(siteID int64, names map[int64]string) string {
	if n, ok := names[siteID]; ok && n != "" {
		return n
	}
	if siteID == 0 {
		return "Portfolio total"
	}
	return fmt.Sprintf("Site %d", siteID)
}

// SiteNames maps site ids to names from a portfolio results payload.
func SiteNames(res *models.PortfolioResults) map[int64]string {
	names := make(map[int64]string)
	if res == nil {
		return names
	}
	for _, sf := range res.SiteForecasts {
		names[sf.SiteID] = sf.SiteName
	}
	return names
}

var seriesColors = []string{"2563eb", "16a34a", "ea580c", "9333ea", "0891b2", "ca8a04", "db2777"}

// RenderChart renders the series as a PNG line chart. Every plotted series
// needs at least two points.
func RenderChart(series []Series, title string) ([]byte, error) {
	var plotted []chart.Series
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, s := range series {
		if len(s.Points) < 2 {
			continue
		}
		xValues := make([]time.Time, len(s.Points))
		yValues := make([]float64, len(s.Points))
		for j, p := range s.Points {
			xValues[j] = p.Time
			yValues[j] = p.Value
			minY = math.Min(minY, p.Value)
			maxY = math.Max(maxY, p.Value)
		}
		style := chart.Style{
			StrokeColor: drawing.ColorFromHex(seriesColors[i%len(seriesColors)]),
			StrokeWidth: 2,
		}
		if s.SiteID == 0 {
			style.StrokeColor = drawing.ColorFromHex("111827")
			style.StrokeWidth = 2.5
			style.StrokeDashArray = []float64{5.0, 3.0}
		}
		plotted = append(plotted, chart.TimeSeries{
			Name:    s.Name,
			Style:   style,
			XValues: xValues,
			YValues: yValues,
		})
	}
	if len(plotted) == 0 {
		return nil, fmt.Errorf("need at least one series with 2 data points")
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1000,
		Height: 420,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).UTC().Format("02 Jan 15:04")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f MWh", f)
				}
				return ""
			},
		},
		Series: plotted,
	}
	// A flat forecast (e.g. solar overnight) has no y-range of its own.
	if maxY == minY {
		graph.YAxis.Range = &chart.ContinuousRange{Min: minY, Max: minY + 1}
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
