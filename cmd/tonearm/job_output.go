package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tonearm/internal/ipc"
	"tonearm/internal/matching"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderJobsTable(jobs []ipc.JobItem) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Status,
			strconv.Itoa(job.Attempts),
			job.Path,
			formatDisplayTime(job.UpdatedAt),
			truncate(job.LastError, 60),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Attempts", "Path", "Updated", "Last error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	)
}

func renderJobDetail(w io.Writer, resp *ipc.JobStatusResponse) {
	if resp == nil {
		return
	}
	job := resp.Job
	kind := "scan"
	if job.Rescan {
		kind = "rescan"
	}
	fmt.Fprint(w, renderFields([][2]string{
		{"Job", job.ID},
		{"Path", job.Path},
		{"File ID", job.FileID},
		{"Kind", kind},
		{"Status", job.Status},
		{"Attempts", strconv.Itoa(job.Attempts)},
		{"Retries", strconv.Itoa(job.Retries)},
		{"Created", formatDisplayTime(job.CreatedAt)},
		{"Next attempt", formatDisplayTime(job.NextAttemptAt)},
		{"Completed", formatDisplayTime(job.CompletedAt)},
		{"Last error", job.LastError},
		{"Error class", job.ErrorClass},
	}))

	if len(job.History) > 0 {
		rows := make([][]string, 0, len(job.History))
		for _, attempt := range job.History {
			backoff := ""
			if attempt.BackoffMS > 0 {
				backoff = (time.Duration(attempt.BackoffMS) * time.Millisecond).String()
			}
			rows = append(rows, []string{
				strconv.Itoa(attempt.Number),
				attempt.Outcome,
				formatDisplayTime(attempt.StartedAt),
				formatDisplayTime(attempt.FinishedAt),
				backoff,
				truncate(attempt.Error, 60),
			})
		}
		fmt.Fprintln(w, "History:")
		fmt.Fprint(w, renderTable(
			[]string{"#", "Outcome", "Started", "Finished", "Backoff", "Error"},
			rows,
			[]columnAlignment{alignRight},
		))
	}

	if resp.Result != nil {
		fmt.Fprintln(w, "Result:")
		renderResult(w, *resp.Result)
	}
}

func renderResult(w io.Writer, result matching.Result) {
	fields := [][2]string{
		{"Path", result.Path},
		{"State", result.State.String()},
	}
	if result.Resolved() {
		chosen := result.Chosen
		confidence := strconv.FormatFloat(result.Confidence, 'f', 3, 64)
		if result.LowConfidence {
			confidence += " (low confidence)"
		}
		fields = append(fields,
			[2]string{"Strategy", result.Strategy.String()},
			[2]string{"Confidence", confidence},
			[2]string{"Recording", chosen.RecordingID},
			[2]string{"Title", chosen.Title},
			[2]string{"Artist", chosen.Artist},
			[2]string{"Album", chosen.Album},
		)
	}
	if result.DurationSeconds > 0 {
		fields = append(fields, [2]string{"Duration", (time.Duration(result.DurationSeconds * float64(time.Second))).Round(time.Second).String()})
	}
	if !result.ResolvedAt.IsZero() {
		fields = append(fields, [2]string{"Resolved at", result.ResolvedAt.Local().Format(time.DateTime)})
	}
	fmt.Fprint(w, renderFields(fields))

	if len(result.Auxiliary) > 0 {
		rows := make([][]string, 0, len(result.Auxiliary))
		for _, c := range result.Auxiliary {
			rows = append(rows, []string{
				c.Strategy.String(),
				strconv.FormatFloat(c.Confidence, 'f', 3, 64),
				c.RecordingID,
				joinNonEmpty(" - ", c.Artist, c.Title),
			})
		}
		fmt.Fprintln(w, "Below threshold:")
		fmt.Fprint(w, renderTable([]string{"Strategy", "Confidence", "Recording", "Match"}, rows,
			[]columnAlignment{alignLeft, alignRight}))
	}
	if len(result.Failures) > 0 {
		rows := make([][]string, 0, len(result.Failures))
		for _, f := range result.Failures {
			rows = append(rows, []string{f.Strategy.String(), string(f.Class), truncate(f.Error, 80)})
		}
		fmt.Fprintln(w, "Strategy failures:")
		fmt.Fprint(w, renderTable([]string{"Strategy", "Class", "Error"}, rows, nil))
	}
}

// formatDisplayTime renders an RFC3339 wire timestamp in local time.
func formatDisplayTime(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format(time.DateTime)
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
