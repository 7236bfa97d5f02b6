// Package intent turns a raw chat command into a structured Intent.
package intent

import (
	"fmt"
	"regexp"
	"strings"

	"todochat/internal/domain"
)

type Kind string

const (
	KindAdd      Kind = "add"
	KindList     Kind = "list"
	KindStats    Kind = "stats"
	KindDelete   Kind = "delete"
	KindComplete Kind = "complete"
	KindHelp     Kind = "help"
	KindUnknown  Kind = "unknown"
)

// Intent is a parsed command. Which fields are meaningful depends on Kind:
// Add uses Title, Description and DueDate; List uses Filter; Delete and
// Complete use Reference; Complete also uses Desired; Unknown keeps Raw.
type Intent struct {
	Kind        Kind
	Title       string
	Description string
	DueDate     string
	Filter      domain.Filter
	Reference   string
	Desired     bool
	Raw         string
}

// Mutates reports whether executing the intent changes the task collection.
func (i Intent) Mutates() bool {
	switch i.Kind {
	case KindAdd, KindDelete, KindComplete:
		return true
	}
	return false
}

// UsageError reports a recognized command with missing arguments.
type UsageError struct {
	Verb  string
	Usage string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

var usages = map[string]string{
	"add":        "add <title> [desc <text>] [due YYYY-MM-DD]",
	"delete":     "delete <id or title>",
	"complete":   "complete <id or title>",
	"uncomplete": "uncomplete <id or title>",
}

func usageError(verb string) error {
	return &UsageError{Verb: verb, Usage: usages[verb]}
}

var (
	descMarker = regexp.MustCompile(`(?i)\b(?:description|desc)\b\s*:?\s*(.*)$`)
	forMarker  = regexp.MustCompile(`(?i)\sfor\s+(.+)$`)
)

// Parse converts raw into an Intent. Unrecognized verbs give KindUnknown and a
// nil error; recognized verbs missing a required argument give a *UsageError.
func Parse(raw string) (Intent, error) {
	text := normalize(raw)
	if text == "" {
		return Intent{Kind: KindUnknown, Raw: text}, nil
	}
	verb, rest, _ := strings.Cut(text, " ")
	verb = strings.ToLower(verb)

	switch verb {
	case "add":
		return parseAdd(rest)
	case "list":
		return Intent{Kind: KindList, Filter: domain.ParseFilter(strings.ToLower(rest))}, nil
	case "pending":
		return Intent{Kind: KindList, Filter: domain.FilterPending}, nil
	case "completed":
		return Intent{Kind: KindList, Filter: domain.FilterCompleted}, nil
	case "stats":
		return Intent{Kind: KindStats}, nil
	case "help":
		return Intent{Kind: KindHelp}, nil
	case "delete":
		if rest == "" {
			return Intent{}, usageError(verb)
		}
		return Intent{Kind: KindDelete, Reference: rest}, nil
	case "complete", "uncomplete":
		if rest == "" {
			return Intent{}, usageError(verb)
		}
		return Intent{Kind: KindComplete, Reference: rest, Desired: verb == "complete"}, nil
	default:
		return Intent{Kind: KindUnknown, Raw: text}, nil
	}
}

func parseAdd(rest string) (Intent, error) {
	out := Intent{Kind: KindAdd}
	work := rest

	// Due date first: a description may itself contain a date.
	if due, remaining, ok := extractDueDate(work); ok {
		out.DueDate = due
		work = remaining
	}

	if loc := descMarker.FindStringSubmatchIndex(work); loc != nil {
		out.Description = normalize(work[loc[2]:loc[3]])
		work = work[:loc[0]]
	} else if loc := forMarker.FindStringSubmatchIndex(work); loc != nil {
		out.Description = normalize(work[loc[2]:loc[3]])
		work = work[:loc[0]]
	}

	out.Title = strings.Trim(normalize(work), " ,;:-")
	if out.Title == "" {
		return Intent{}, usageError("add")
	}
	return out, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
