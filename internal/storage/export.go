package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders probe history as a markdown table.
func ExportMarkdown(records []CheckRecord) string {
	var b strings.Builder

	b.WriteString("# Health check history\n\n")
	if len(records) == 0 {
		b.WriteString("_No checks recorded._\n")
		return b.String()
	}

	b.WriteString("| Checked | Client | Server | State | Detail | Elapsed |\n")
	b.WriteString("|---------|--------|--------|-------|--------|---------|\n")
	for _, r := range records {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %dms |\n",
			r.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			r.Client, mdEscape(r.Server), r.State, mdEscape(Detail(r)), r.ElapsedMS))
	}
	return b.String()
}

// ExportJSON renders probe history as formatted JSON.
func ExportJSON(records []CheckRecord) ([]byte, error) {
	if records == nil {
		records = []CheckRecord{}
	}
	export := struct {
		Checks []CheckRecord `json:"checks"`
	}{
		Checks: records,
	}
	return json.MarshalIndent(export, "", "  ")
}

// Detail is the short human description of a record's outcome.
func Detail(r CheckRecord) string {
	switch {
	case r.Reason != "":
		return r.Reason
	case r.ServerName != "":
		return strings.TrimSpace(r.ServerName + " " + r.ServerVersion)
	}
	return ""
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
