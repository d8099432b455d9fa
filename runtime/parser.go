// Package runtime orchestrates simulation runs: engine subprocess
// supervision, stdout progress parsing, telemetry publishing, artifact
// archival, and retention.
package runtime

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/justapithecus/planalign/types"
)

// Simulation stages in detection priority order. The first pattern that
// matches a line wins.
var stagePatterns = []struct {
	Stage   string
	Pattern *regexp.Regexp
}{
	{"INITIALIZATION", regexp.MustCompile(`[Ii]nitializ|[Ss]etup|[Ll]oading`)},
	{"FOUNDATION", regexp.MustCompile(`[Ff]oundation|[Bb]aseline`)},
	{"EVENT_GENERATION", regexp.MustCompile(`[Ee]vent|[Gg]enerat`)},
	{"STATE_ACCUMULATION", regexp.MustCompile(`[Ss]tate|[Aa]ccumul`)},
	{"VALIDATION", regexp.MustCompile(`[Vv]alidat`)},
	{"REPORTING", regexp.MustCompile(`[Rr]eport|[Cc]omplet`)},
}

var (
	yearPattern       = regexp.MustCompile(`[Yy]ear[:\s]+(\d{4})`)
	eventCountPattern = regexp.MustCompile(`(?i)(\d+)\s*events?`)
	eventEntryPattern = regexp.MustCompile(`(?i)(HIRE|TERMINATION|PROMOTION|RAISE|ENROLLMENT)[\s:]+(\w+)`)
)

var errorKeywords = []string{"error", "exception", "failed", "traceback"}

// LineChanges summarizes what one parsed line changed, so the caller can
// decide whether to broadcast telemetry.
type LineChanges struct {
	YearChanged  bool
	StageChanged bool
	NewEvent     *types.RecentEvent
}

// OutputParser tracks simulation progress from engine stdout lines.
// Stateful and single-threaded per run; it never fails on a line —
// unparsable input leaves state unchanged.
type OutputParser struct {
	startYear  int
	totalYears int

	currentYear     int
	currentStage    string
	eventsGenerated int64
	recentEvents    []types.RecentEvent

	maxRecent int
	now       func() time.Time
}

// NewOutputParser creates a parser for the given simulation year range.
func NewOutputParser(startYear, totalYears int) *OutputParser {
	return &OutputParser{
		startYear:    startYear,
		totalYears:   totalYears,
		currentYear:  startYear,
		currentStage: "INITIALIZATION",
		maxRecent:    types.MaxRecentEvents,
		now:          time.Now,
	}
}

// CurrentYear returns the last detected simulation year.
func (p *OutputParser) CurrentYear() int { return p.currentYear }

// CurrentStage returns the last detected stage.
func (p *OutputParser) CurrentStage() string { return p.currentStage }

// EventsGenerated returns the last aggregate event count seen.
func (p *OutputParser) EventsGenerated() int64 { return p.eventsGenerated }

// RecentEvents returns a copy of the recent-event ring, newest first.
func (p *OutputParser) RecentEvents() []types.RecentEvent {
	out := make([]types.RecentEvent, len(p.recentEvents))
	copy(out, p.recentEvents)
	return out
}

// ParseLine applies year, stage, aggregate-count, and individual-event
// detection to one output line, in that order.
func (p *OutputParser) ParseLine(line string) LineChanges {
	var changes LineChanges

	if m := yearPattern.FindStringSubmatch(line); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil && year != p.currentYear {
			p.currentYear = year
			changes.YearChanged = true
			p.addEvent("INFO", "Year "+m[1], "Processing simulation year "+m[1])
		}
	}

	prevStage := p.currentStage
	for _, sp := range stagePatterns {
		if sp.Pattern.MatchString(line) {
			p.currentStage = sp.Stage
			break
		}
	}
	if p.currentStage != prevStage {
		changes.StageChanged = true
		p.addEvent("STAGE", "Year "+strconv.Itoa(p.currentYear), "Entering "+stageTitle(p.currentStage))
	}

	if m := eventCountPattern.FindStringSubmatch(line); m != nil {
		if count, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			// Aggregate counts set, never increment.
			p.eventsGenerated = count
		}
	}

	if m := eventEntryPattern.FindStringSubmatch(line); m != nil {
		details := line
		if len(details) > 100 {
			details = details[:100]
		}
		entry := p.addEvent(strings.ToUpper(m[1]), m[2], details)
		changes.NewEvent = &entry
	}

	return changes
}

// Progress returns the derived progress percentage, held below 100 until
// the run completes.
func (p *OutputParser) Progress() int {
	if p.totalYears <= 0 {
		return 0
	}
	yearIdx := p.currentYear - p.startYear
	yearProgress := float64(yearIdx) / float64(p.totalYears) * 100
	progress := int(math.Round(yearProgress)) + 10
	if progress > 99 {
		return 99
	}
	if progress < 0 {
		return 0
	}
	return progress
}

func (p *OutputParser) addEvent(eventType, employeeID, details string) types.RecentEvent {
	entry := types.RecentEvent{
		EventType:  eventType,
		EmployeeID: employeeID,
		Timestamp:  p.now(),
		Details:    details,
	}
	p.recentEvents = append([]types.RecentEvent{entry}, p.recentEvents...)
	if len(p.recentEvents) > p.maxRecent {
		p.recentEvents = p.recentEvents[:p.maxRecent]
	}
	return entry
}

// ClassifyLine routes an output line to a log level by substring.
func ClassifyLine(line string) string {
	lower := strings.ToLower(line)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return "error"
		}
	}
	if strings.Contains(lower, "warning") {
		return "warning"
	}
	return "debug"
}

// stageTitle renders STATE_ACCUMULATION as "State Accumulation".
func stageTitle(stage string) string {
	words := strings.Split(strings.ToLower(stage), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
