package bridge

import (
	"fmt"
	"strings"
	"time"
)

// escape makes s safe inside a double-quoted AppleScript literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// NotificationScript shows a desktop notification. Urgent items get a
// sound.
func NotificationScript(title, body string, urgent bool) string {
	sound := ""
	if urgent {
		sound = ` sound name "Glass"`
	}
	return fmt.Sprintf(`display notification "%s" with title "%s"%s`,
		escape(body), escape(title), sound)
}

// ReminderScript ensures the list exists and appends one reminder,
// returning its id. The due date, when set, is built field by field so
// the script never depends on the system date-string locale.
func ReminderScript(list, content string, due time.Time, hasDue bool) string {
	var b strings.Builder

	if hasDue {
		fmt.Fprintf(&b, "set dueDate to (current date)\n")
		fmt.Fprintf(&b, "set year of dueDate to %d\n", due.Year())
		fmt.Fprintf(&b, "set month of dueDate to %d\n", int(due.Month()))
		fmt.Fprintf(&b, "set day of dueDate to %d\n", due.Day())
		fmt.Fprintf(&b, "set hours of dueDate to %d\n", due.Hour())
		fmt.Fprintf(&b, "set minutes of dueDate to %d\n", due.Minute())
		fmt.Fprintf(&b, "set seconds of dueDate to 0\n")
	}

	fmt.Fprintf(&b, "tell application \"Reminders\"\n")
	fmt.Fprintf(&b, "\tif not (exists list \"%s\") then\n", escape(list))
	fmt.Fprintf(&b, "\t\tmake new list with properties {name:\"%s\"}\n", escape(list))
	fmt.Fprintf(&b, "\tend if\n")
	fmt.Fprintf(&b, "\tset theItem to make new reminder at end of reminders of list \"%s\" with properties {name:\"%s\"}\n",
		escape(list), escape(content))
	if hasDue {
		fmt.Fprintf(&b, "\tset remind me date of theItem to dueDate\n")
	}
	fmt.Fprintf(&b, "\treturn id of theItem\n")
	fmt.Fprintf(&b, "end tell\n")
	return b.String()
}

// NoteScript ensures the folder exists and creates one note, returning
// its id.
func NoteScript(folder, title, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tell application \"Notes\"\n")
	fmt.Fprintf(&b, "\tif not (exists folder \"%s\") then\n", escape(folder))
	fmt.Fprintf(&b, "\t\tmake new folder with properties {name:\"%s\"}\n", escape(folder))
	fmt.Fprintf(&b, "\tend if\n")
	fmt.Fprintf(&b, "\tset theNote to make new note at folder \"%s\" with properties {name:\"%s\", body:\"%s\"}\n",
		escape(folder), escape(title), escape(body))
	fmt.Fprintf(&b, "\treturn id of theNote\n")
	fmt.Fprintf(&b, "end tell\n")
	return b.String()
}
