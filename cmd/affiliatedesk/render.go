package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/dashboard"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/viewmodel"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

const joinDateLayout = "2006-01-02"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	labelStyle  = lipgloss.NewStyle().Bold(true)

	statusColors = map[affiliates.Status]lipgloss.Color{
		affiliates.StatusActive:    lipgloss.Color("42"),
		affiliates.StatusPending:   lipgloss.Color("214"),
		affiliates.StatusInactive:  lipgloss.Color("245"),
		affiliates.StatusSuspended: lipgloss.Color("196"),
	}

	columnTitles = []struct {
		key   viewmodel.SortKey
		title string
	}{
		{viewmodel.SortName, "Name"},
		{viewmodel.SortEmail, "Email"},
		{viewmodel.SortStatus, "Status"},
		{viewmodel.SortRevenue, "Revenue"},
		{viewmodel.SortClicks, "Clicks"},
		{viewmodel.SortConversionRate, "Conv."},
		{viewmodel.SortJoinDate, "Joined"},
	}
)

func formatCurrency(amount float64) string {
	return "$" + humanize.CommafWithDigits(amount, 2)
}

func formatPercent(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 2, 64) + "%"
}

func renderStatus(status affiliates.Status) string {
	color, ok := statusColors[status]
	if !ok {
		return status.Label()
	}
	return lipgloss.NewStyle().Foreground(color).Render(status.Label())
}

// headers marks the active sort column with an arrow.
func headers(order viewmodel.Sort) []string {
	titles := make([]string, 0, len(columnTitles)+1)
	titles = append(titles, "ID")
	for _, column := range columnTitles {
		title := column.title
		if column.key == order.Key {
			if order.Direction == viewmodel.Descending {
				title += " ↓"
			} else {
				title += " ↑"
			}
		}
		titles = append(titles, title)
	}
	return titles
}

func renderAffiliateTable(out io.Writer, view viewmodel.View, stats viewmodel.Stats) {
	rows := make([][]string, 0, len(view.Rows))
	for _, record := range view.Rows {
		rows = append(rows, []string{
			record.ID,
			record.Name,
			record.Email,
			renderStatus(record.Status),
			formatCurrency(record.Revenue),
			humanize.Comma(record.Clicks),
			formatPercent(record.ConversionRate),
			record.JoinDate.Format(joinDateLayout),
		})
	}

	grid := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers(view.Sort)...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(out, grid.Render())

	if view.FilteredCount == 0 {
		if view.SearchTerm != "" {
			fmt.Fprintf(out, "No affiliates match %q.\n", view.SearchTerm)
		} else {
			fmt.Fprintln(out, "No affiliates yet.")
		}
	} else {
		fmt.Fprintf(out, "Showing %d-%d of %s, page %d of %d\n",
			view.RangeStart, view.RangeEnd, pluralAffiliates(view.FilteredCount), view.Page, view.TotalPages)
	}
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s total, %s active, %s revenue",
		humanize.Comma(int64(stats.Total)), humanize.Comma(int64(stats.Active)), formatCurrency(stats.Revenue))))
}

func renderOverview(out io.Writer, overview dashboard.Overview) {
	if overview.User.Name != "" {
		fmt.Fprintf(out, "Welcome back, %s\n\n", overview.User.Name)
	}
	kpis := overview.KPIs
	grid := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Total revenue", "Affiliates", "Active", "Clicks", "Conversion").
		Row(
			formatCurrency(kpis.TotalRevenue),
			humanize.Comma(kpis.TotalAffiliates),
			humanize.Comma(kpis.ActiveAffiliates),
			humanize.Comma(kpis.TotalClicks),
			formatPercent(kpis.ConversionRate),
		).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(out, grid.Render())
	if !overview.StatsAvailable {
		fmt.Fprintln(out, mutedStyle.Render("Statistics are unavailable right now; showing zeros."))
	}
}

func renderRecord(out io.Writer, verb string, record affiliates.Record) {
	fmt.Fprintf(out, "%s %s %s <%s> %s\n",
		labelStyle.Render(verb), record.ID, record.Name, record.Email, renderStatus(record.Status))
}

func renderChange(out io.Writer, change affiliates.ChangeEvent) {
	line := fmt.Sprintf("%s %s %s", change.Timestamp.Local().Format("15:04:05"), labelStyle.Render(string(change.Action)), strings.Join(change.AffiliateIDs, ", "))
	if change.Status != "" {
		line += " " + renderStatus(change.Status)
	}
	fmt.Fprintln(out, line)
}

func pluralAffiliates(count int) string {
	if count == 1 {
		return "1 affiliate"
	}
	return humanize.Comma(int64(count)) + " affiliates"
}

func fieldSummary(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+fields[name])
	}
	return strings.Join(parts, "; ")
}
