package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/bobmcallan/sitecast/internal/client"
	"github.com/bobmcallan/sitecast/internal/models"
)

// Format selects how resources are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563eb"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(16)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#e53935")).
			Padding(0, 1)
	bannerTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
)

// Renderer writes resources in one output format.
type Renderer struct {
	w      io.Writer
	format Format
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, format Format) *Renderer {
	return &Renderer{w: w, format: format}
}

// structured writes v as JSON or YAML. It reports false for table output.
func (r *Renderer) structured(v any) (bool, error) {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		// Round-trip through JSON so YAML keys follow the API's field names.
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

func (r *Renderer) field(label, value string) {
	r.printf("%s %s\n", labelStyle.Render(label), value)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

// Sites writes a site listing. Unknown capacities are left blank.
func (r *Renderer) Sites(sites []models.Site) error {
	if ok, err := r.structured(sites); ok {
		return err
	}
	if len(sites) == 0 {
		r.printf("%s\n", mutedStyle.Render("No sites."))
		return nil
	}
	rows := make([][]string, 0, len(sites))
	for _, s := range sites {
		capacity, _ := FormatCapacity(s.CapacityMW)
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10), s.Name, s.SiteType.Label(),
			FormatCoordinates(s.Latitude, s.Longitude), capacity,
		})
	}
	r.printf("%s\n", renderTable([]string{"ID", "Name", "Type", "Location", "Capacity"}, rows))
	return nil
}

// Site writes one site. The capacity line is omitted when unknown.
func (r *Renderer) Site(s *models.Site) error {
	if ok, err := r.structured(s); ok {
		return err
	}
	r.printf("%s\n", titleStyle.Render(s.Name))
	r.field("ID", strconv.FormatInt(s.ID, 10))
	r.field("Type", s.SiteType.Label())
	r.field("Location", FormatCoordinates(s.Latitude, s.Longitude))
	if c, ok := FormatCapacity(s.CapacityMW); ok {
		r.field("Capacity", c)
	}
	r.field("Updated", formatTime(&s.UpdatedAt))
	return nil
}

// Portfolios writes a portfolio listing.
func (r *Renderer) Portfolios(portfolios []models.Portfolio) error {
	if ok, err := r.structured(portfolios); ok {
		return err
	}
	if len(portfolios) == 0 {
		r.printf("%s\n", mutedStyle.Render("No portfolios."))
		return nil
	}
	rows := make([][]string, 0, len(portfolios))
	for _, p := range portfolios {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10), p.Name, strconv.Itoa(p.SiteCount), FormatMW(p.TotalCapacity.Float()),
		})
	}
	r.printf("%s\n", renderTable([]string{"ID", "Name", "Sites", "Capacity"}, rows))
	return nil
}

// Portfolio writes one portfolio and its sites.
func (r *Renderer) Portfolio(p *models.Portfolio) error {
	if ok, err := r.structured(p); ok {
		return err
	}
	r.printf("%s\n", titleStyle.Render(p.Name))
	r.field("ID", strconv.FormatInt(p.ID, 10))
	if p.Description != "" {
		r.field("Description", p.Description)
	}
	r.field("Sites", strconv.Itoa(p.SiteCount))
	r.field("Total capacity", FormatMW(p.TotalCapacity.Float()))
	if len(p.Sites) > 0 {
		r.printf("\n")
		return r.Sites(p.Sites)
	}
	return nil
}

// JobStatus writes the state of a forecast job.
func (r *Renderer) JobStatus(s *models.JobStatusResponse) error {
	if ok, err := r.structured(s); ok {
		return err
	}
	r.field("Job", s.JobID)
	r.field("Portfolio", fmt.Sprintf("%s (%d)", s.PortfolioName, s.PortfolioID))
	r.field("Status", string(s.Status))
	r.field("Horizon", fmt.Sprintf("%d h", s.ForecastHorizon))
	r.field("Created", formatTime(&s.CreatedAt))
	if s.CompletedAt != nil {
		r.field("Completed", formatTime(s.CompletedAt))
	}
	if s.ErrorMessage != "" {
		r.field("Error", s.ErrorMessage)
	}
	if s.ResultCount != nil && s.ExpectedResults != nil {
		r.field("Results", fmt.Sprintf("%d / %d", *s.ResultCount, *s.ExpectedResults))
	}
	return nil
}

// PortfolioResults writes portfolio totals per hour.
func (r *Renderer) PortfolioResults(res *models.PortfolioResults) error {
	if ok, err := r.structured(res); ok {
		return err
	}
	r.printf("%s\n", titleStyle.Render(fmt.Sprintf("%s: %d sites, %s", res.PortfolioName, res.SiteCount, FormatMW(res.TotalCapacityMW.Float()))))
	r.field("Job", res.JobID)
	rows := make([][]string, 0, len(res.PortfolioTotals))
	for _, t := range res.PortfolioTotals {
		rows = append(rows, []string{
			t.Datetime.Local().Format("2006-01-02 15:04"),
			FormatMWh(t.TotalPredictedMWh.Float()),
			FormatMWh(t.TotalConfidenceLower.Float()),
			FormatMWh(t.TotalConfidenceUpper.Float()),
		})
	}
	r.printf("%s\n", renderTable([]string{"Time", "Predicted", "Lower", "Upper"}, rows))
	return nil
}

// SiteResults writes the hourly forecast of one site.
func (r *Renderer) SiteResults(res *models.SiteResults) error {
	if ok, err := r.structured(res); ok {
		return err
	}
	heading := res.SiteName + " (" + res.SiteType.Label()
	if c, ok := FormatCapacity(res.CapacityMW); ok {
		heading += ", " + c
	}
	r.printf("%s\n", titleStyle.Render(heading+")"))
	rows := make([][]string, 0, len(res.Forecasts))
	for _, p := range res.Forecasts {
		lower, upper := "", ""
		if p.ConfidenceIntervalLower != nil {
			lower = FormatMWh(p.ConfidenceIntervalLower.Float())
		}
		if p.ConfidenceIntervalUpper != nil {
			upper = FormatMWh(p.ConfidenceIntervalUpper.Float())
		}
		rows = append(rows, []string{
			p.Datetime.Local().Format("2006-01-02 15:04"), FormatMWh(p.PredictedGenerationMWh.Float()), lower, upper,
		})
	}
	r.printf("%s\n", renderTable([]string{"Time", "Predicted", "Lower", "Upper"}, rows))
	return nil
}

// Dashboard writes the fleet summary.
func (r *Renderer) Dashboard(d *Dashboard) error {
	if ok, err := r.structured(d); ok {
		return err
	}
	s := d.Summary
	r.printf("%s\n", titleStyle.Render("Sitecast"))
	r.field("Sites", strconv.Itoa(s.SiteCount))
	for _, t := range models.ValidSiteTypes {
		r.field("  "+t.Label(), strconv.Itoa(s.SitesByType[t]))
	}
	r.field("Capacity", FormatMW(s.TotalCapacityMW))
	if s.UnknownCapacity > 0 {
		r.printf("%s\n", mutedStyle.Render(fmt.Sprintf("%d site(s) without recorded capacity", s.UnknownCapacity)))
	}
	r.field("Portfolios", strconv.Itoa(s.PortfolioCount))
	return nil
}

// ErrorBanner formats err for display. Field messages are listed and a retry
// hint is shown only for retryable failures.
func ErrorBanner(err error) string {
	if err == nil {
		return ""
	}

	var lines []string
	var apiErr *client.Error
	var jobErr *client.JobFailedError
	switch {
	case errors.As(err, &jobErr):
		msg := jobErr.Message
		if msg == "" {
			msg = jobErr.Error()
		}
		lines = append(lines, bannerTitle.Render("Forecast failed"), msg)
	case errors.Is(err, client.ErrPollTimeout):
		lines = append(lines, bannerTitle.Render("Forecast still running"),
			"The job did not finish in time. Check it later with 'sitecast forecast status'.")
	case errors.As(err, &apiErr):
		lines = append(lines, bannerTitle.Render(apiErr.Message))
		if apiErr.Details != "" {
			lines = append(lines, apiErr.Details)
		}
		for _, name := range apiErr.FieldNames() {
			lines = append(lines, fmt.Sprintf("  %s: %s", name, strings.Join(apiErr.Fields[name], " ")))
		}
		if errors.Is(err, client.ErrStatusCheckFailed) {
			lines = append(lines, client.ErrStatusCheckFailed.Error())
		}
		if apiErr.Retryable() {
			lines = append(lines, mutedStyle.Render("This may be temporary. Run the command again to retry."))
		}
	default:
		lines = append(lines, bannerTitle.Render("Error"), err.Error())
	}
	return bannerStyle.Render(strings.Join(lines, "\n"))
}
