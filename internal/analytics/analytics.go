// Package analytics aggregates the interaction log into daily usage reports.
package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ai-datalab/internal/storage"
)

// DailyStats is the usage of one calendar day.
type DailyStats struct {
	Date           string                  `json:"date"`
	TotalMessages  int                     `json:"total_messages"`
	UniqueSessions int                     `json:"unique_sessions"`
	Failures       int                     `json:"failures"`
	FilesByName    map[string]int          `json:"files_by_name"`
	SessionStats   map[string]SessionStats `json:"session_stats"`
}

type SessionStats struct {
	SessionID string `json:"session_id"`
	Messages  int    `json:"messages"`
	Failures  int    `json:"failures"`
}

// AnalyzeDailyLogs counts the events whose timestamp falls on targetDate in
// targetDate's location. Events without a user message are ignored.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		FilesByName:  make(map[string]int),
		SessionStats: make(map[string]SessionStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		ss, ok := stats.SessionStats[event.SessionID]
		if !ok {
			ss = SessionStats{SessionID: event.SessionID}
		}
		ss.Messages++
		if event.Failed {
			stats.Failures++
			ss.Failures++
		}
		if event.File != "" {
			stats.FilesByName[event.File]++
		}
		stats.SessionStats[event.SessionID] = ss
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// GenerateReportSummary renders the stats as plain text, busiest entries
// first.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "AI DataLab usage for %s:\n\n", ds.Date)
	fmt.Fprintf(&b, "- Messages: %d\n", ds.TotalMessages)
	fmt.Fprintf(&b, "- Unique sessions: %d\n", ds.UniqueSessions)
	fmt.Fprintf(&b, "- Failed requests: %d\n", ds.Failures)

	if len(ds.FilesByName) > 0 {
		b.WriteString("\nDatasets analyzed:\n")
		for _, name := range sortedByCount(ds.FilesByName) {
			fmt.Fprintf(&b, "- %s: %d\n", name, ds.FilesByName[name])
		}
	}

	if len(ds.SessionStats) > 0 {
		counts := make(map[string]int, len(ds.SessionStats))
		for id, ss := range ds.SessionStats {
			counts[id] = ss.Messages
		}
		fmt.Fprintf(&b, "\nSessions (%d):\n", len(ds.SessionStats))
		for _, id := range sortedByCount(counts) {
			ss := ds.SessionStats[id]
			fmt.Fprintf(&b, "- %s: %d messages", id, ss.Messages)
			if ss.Failures > 0 {
				fmt.Fprintf(&b, ", %d failed", ss.Failures)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
