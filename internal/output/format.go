// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tasksync/internal/service"
)

const (
	// ListSeparator is the separator line printed above the list footer.
	ListSeparator = "------------"

	timeLayout = "2006-01-02 15:04"
)

// FormatTask formats a task line for the list.
// Format: "{N:>4}  [x] {TITLE}[  due {DATE}][  #tag ...]\n"
func FormatTask(w io.Writer, st *Styles, num int, task service.Task) {
	mark := "[ ]"
	title := normalizeTitle(task.Title)
	if task.Completed {
		mark = "[x]"
		title = st.done(title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%4d  %s %s", num, mark, title)
	if task.DueDate != nil {
		b.WriteString("  ")
		b.WriteString(st.due("due " + task.DueDate.String()))
	}
	if len(task.Tags) > 0 {
		b.WriteString("  ")
		b.WriteString(st.tag(formatTags(task.Tags)))
	}
	fmt.Fprintln(w, b.String())
}

// FormatListFooter prints how many of the store's tasks are shown.
func FormatListFooter(w io.Writer, st *Styles, shown, total int) {
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, st.muted(fmt.Sprintf("%d of %d tasks", shown, total)))
}

// FormatTaskDetail prints every field of a task, one per line.
func FormatTaskDetail(w io.Writer, st *Styles, task service.Task) {
	status := "open"
	if task.Completed {
		status = st.done("done")
	}
	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", st.label(fmt.Sprintf("%-12s", label+":")), value)
	}

	row("ID", task.ID.String())
	row("Title", normalizeTitle(task.Title))
	row("Status", status)
	if task.DueDate != nil {
		row("Due", task.DueDate.String())
	}
	if len(task.Tags) > 0 {
		row("Tags", strings.Join(task.Tags, ", "))
	}
	if task.Description != "" {
		row("Description", task.Description)
	}
	if !task.CreatedAt.IsZero() {
		row("Created", formatTime(task.CreatedAt))
	}
	if !task.UpdatedAt.IsZero() {
		row("Updated", formatTime(task.UpdatedAt))
	}
}

func formatTags(tags []string) string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = "#" + tag
	}
	return strings.Join(out, " ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	// Replace newlines with spaces
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	// Trim and check for empty
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
