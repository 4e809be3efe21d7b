package status

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
}

func renderView(snapshot domain.Snapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Grohe Smarthome"),
		s.header.Render(fmt.Sprintf("devices: %d", len(snapshot.Devices))),
		healthLine(snapshot, opts, s),
	}

	if len(snapshot.Devices) == 0 {
		lines = append(lines, s.empty.Render("No devices discovered yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, device := range snapshot.Devices {
		lines = append(lines, s.section.Render(renderDevice(device, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func healthLine(snapshot domain.Snapshot, opts RenderOptions, s styles) string {
	var line string
	if snapshot.Healthy {
		line = s.healthy.Render("cloud connection: up")
	} else {
		line = s.unhealthy.Render("cloud connection: down")
	}

	if !snapshot.TakenAt.IsZero() {
		line += " " + s.header.Render(fmt.Sprintf("(as of %s)", formatTakenAt(snapshot.TakenAt, opts.Now)))
		if isStale(snapshot.TakenAt, opts) {
			line += " " + s.warning.Render("[stale]")
		}
	}

	return line
}

func renderDevice(device domain.Device, s styles) string {
	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.device.Render(device.Name),
		" ",
		s.kind.Render(fmt.Sprintf("(%s)", device.Kind)),
	)

	parts := []string{
		title,
		s.detail.Render(fmt.Sprintf("location: %s / %s", device.LocationName, device.RoomName)),
	}

	for _, line := range measurementLines(device.Measurements, s) {
		parts = append(parts, line)
	}

	for _, line := range rawLines(device.RawFields, s) {
		parts = append(parts, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func measurementLines(m domain.Measurements, s styles) []string {
	var lines []string
	add := func(key, value string) {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, s.fieldKey.Render(key+": "), s.detail.Render(value)))
	}

	if m.TemperatureCelsius != nil {
		add("temperature", fmt.Sprintf("%.1f °C", *m.TemperatureCelsius))
	}
	if m.HumidityPercent != nil {
		add("humidity", fmt.Sprintf("%.0f %%", *m.HumidityPercent))
	}
	if m.BatteryPercent != nil {
		add("battery", fmt.Sprintf("%d %%", *m.BatteryPercent))
	}
	if m.FlowRateLPH != nil {
		add("flow rate", fmt.Sprintf("%.1f l/h", *m.FlowRateLPH))
	}
	if m.PressureBar != nil {
		add("pressure", fmt.Sprintf("%.2f bar", *m.PressureBar))
	}
	if m.ValveOpen != nil {
		if *m.ValveOpen {
			add("valve", "open")
		} else {
			add("valve", "closed")
		}
	}
	if m.RemainingFilterL != nil {
		add("filter remaining", fmt.Sprintf("%d l", *m.RemainingFilterL))
	}
	if m.RemainingCO2G != nil {
		add("CO2 remaining", fmt.Sprintf("%d g", *m.RemainingCO2G))
	}
	if m.WaterRunningTimeS != nil {
		add("water running time", fmt.Sprintf("%d s", *m.WaterRunningTimeS))
	}

	if len(lines) == 0 {
		return []string{s.empty.Render("no measurements")}
	}

	return lines
}

func rawLines(raw map[string]any, s styles) []string {
	if len(raw) == 0 {
		return nil
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.fieldKey.Render(key+": "),
			s.detail.Render(fmt.Sprintf("%v", raw[key])),
		))
	}

	return lines
}

func isStale(takenAt time.Time, opts RenderOptions) bool {
	if opts.Now.IsZero() || opts.StaleAfter <= 0 {
		return false
	}
	return opts.Now.Sub(takenAt) > opts.StaleAfter
}

func formatTakenAt(takenAt, now time.Time) string {
	if now.IsZero() {
		return takenAt.Format(time.RFC3339)
	}

	elapsed := now.Sub(takenAt)
	if elapsed < time.Minute {
		return "just now"
	}
	if elapsed < time.Hour {
		minutes := int(math.Round(elapsed.Minutes()))
		return fmt.Sprintf("%d min ago", minutes)
	}
	if elapsed < 24*time.Hour {
		return takenAt.Format("15:04")
	}

	return takenAt.Format("15:04 on 02 Jan")
}
