package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gigline/internal/repo"
)

// fieldKind drives how a payload value is validated and coerced before it
// reaches the repository layer.
type fieldKind int

const (
	fieldString fieldKind = iota
	fieldEnum
	fieldNumber
	fieldDateTime
	fieldDateOnly
	fieldBool
	fieldMetadata
)

type fieldSpec struct {
	Name     string
	Kind     fieldKind
	Required bool
	Enum     []string
	Min, Max float64
	Bounded  bool
}

// entitySpec binds one workspace entity kind to its table and field rules.
// Table names come only from this static registry, never from request input.
type entitySpec struct {
	Key    string
	Label  string
	Table  repo.EntityTable
	Fields []fieldSpec
}

var taskStatuses = []string{"todo", "in_progress", "blocked", "review", "done"}
var taskPriorities = []string{"low", "medium", "high", "urgent"}

var entityRegistry = map[string]entitySpec{
	"budget-lines": {
		Key:   "budget-lines",
		Label: "budget line",
		Table: repo.EntityTable{Table: "workspace_budget_lines", Columns: []string{"category", "label", "amount", "status", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "category", Kind: fieldString, Required: true},
			{Name: "label", Kind: fieldString},
			{Name: "amount", Kind: fieldNumber, Min: 0, Max: 100_000_000, Bounded: true},
			{Name: "status", Kind: fieldEnum, Enum: []string{"planned", "approved", "spent", "rejected"}},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"objectives": {
		Key:   "objectives",
		Label: "objective",
		Table: repo.EntityTable{Table: "workspace_objectives", Columns: []string{"title", "status", "progress_percent", "target_date", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "title", Kind: fieldString, Required: true},
			{Name: "status", Kind: fieldEnum, Enum: []string{"on_track", "at_risk", "off_track", "achieved"}},
			{Name: "progress_percent", Kind: fieldNumber, Min: 0, Max: 100, Bounded: true},
			{Name: "target_date", Kind: fieldDateOnly},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"tasks": {
		Key:   "tasks",
		Label: "task",
		Table: repo.EntityTable{Table: "workspace_tasks", Columns: []string{"title", "status", "priority", "assignee", "start_date", "due_date", "estimated_hours", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "title", Kind: fieldString, Required: true},
			{Name: "status", Kind: fieldEnum, Enum: taskStatuses},
			{Name: "priority", Kind: fieldEnum, Enum: taskPriorities},
			{Name: "assignee", Kind: fieldString},
			{Name: "start_date", Kind: fieldDateOnly},
			{Name: "due_date", Kind: fieldDateOnly},
			{Name: "estimated_hours", Kind: fieldNumber, Min: 0, Max: 10_000, Bounded: true},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"meetings": {
		Key:   "meetings",
		Label: "meeting",
		Table: repo.EntityTable{Table: "workspace_meetings", Columns: []string{"title", "scheduled_at", "duration_minutes", "location", "agenda", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "title", Kind: fieldString, Required: true},
			{Name: "scheduled_at", Kind: fieldDateTime},
			{Name: "duration_minutes", Kind: fieldNumber, Min: 0, Max: 1440, Bounded: true},
			{Name: "location", Kind: fieldString},
			{Name: "agenda", Kind: fieldString},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"calendar-events": {
		Key:   "calendar-events",
		Label: "calendar event",
		Table: repo.EntityTable{Table: "workspace_calendar_events", Columns: []string{"title", "kind", "starts_at", "ends_at", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "title", Kind: fieldString, Required: true},
			{Name: "kind", Kind: fieldEnum, Enum: []string{"milestone", "deadline", "reminder", "event"}},
			{Name: "starts_at", Kind: fieldDateTime},
			{Name: "ends_at", Kind: fieldDateTime},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"roles": {
		Key:   "roles",
		Label: "role assignment",
		Table: repo.EntityTable{Table: "workspace_roles", Columns: []string{"person_name", "role_title", "allocation_percent", "status", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "person_name", Kind: fieldString, Required: true},
			{Name: "role_title", Kind: fieldString, Required: true},
			{Name: "allocation_percent", Kind: fieldNumber, Min: 0, Max: 100, Bounded: true},
			{Name: "status", Kind: fieldEnum, Enum: []string{"proposed", "active", "ended"}},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"submissions": {
		Key:   "submissions",
		Label: "submission",
		Table: repo.EntityTable{Table: "workspace_submissions", Columns: []string{"title", "status", "submitted_at", "url", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "title", Kind: fieldString, Required: true},
			{Name: "status", Kind: fieldEnum, Enum: []string{"draft", "submitted", "in_review", "accepted", "rejected"}},
			{Name: "submitted_at", Kind: fieldDateTime},
			{Name: "url", Kind: fieldString},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"invites": {
		Key:   "invites",
		Label: "invite",
		Table: repo.EntityTable{Table: "workspace_invites", Columns: []string{"email", "role_title", "status", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "email", Kind: fieldString, Required: true},
			{Name: "role_title", Kind: fieldString},
			{Name: "status", Kind: fieldEnum, Enum: []string{"pending", "accepted", "declined", "expired"}},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"hr-records": {
		Key:   "hr-records",
		Label: "HR record",
		Table: repo.EntityTable{Table: "workspace_hr_records", Columns: []string{"person_name", "record_type", "effective_date", "notes", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "person_name", Kind: fieldString, Required: true},
			{Name: "record_type", Kind: fieldEnum, Enum: []string{"onboarding", "review", "leave", "offboarding", "note"}},
			{Name: "effective_date", Kind: fieldDateOnly},
			{Name: "notes", Kind: fieldString},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"time-entries": {
		Key:   "time-entries",
		Label: "time entry",
		Table: repo.EntityTable{Table: "workspace_time_entries", Columns: []string{"person_name", "task_ref", "hours", "entry_date", "billable", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "person_name", Kind: fieldString, Required: true},
			{Name: "task_ref", Kind: fieldString},
			{Name: "hours", Kind: fieldNumber, Required: true, Min: 0, Max: 24, Bounded: true},
			{Name: "entry_date", Kind: fieldDateOnly},
			{Name: "billable", Kind: fieldBool},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"objects": {
		Key:   "objects",
		Label: "object",
		Table: repo.EntityTable{Table: "workspace_objects", Columns: []string{"name", "object_type", "url", "size_bytes", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "name", Kind: fieldString, Required: true},
			{Name: "object_type", Kind: fieldString},
			{Name: "url", Kind: fieldString},
			{Name: "size_bytes", Kind: fieldNumber, Min: 0, Max: 1 << 40, Bounded: true},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"documents": {
		Key:   "documents",
		Label: "document",
		Table: repo.EntityTable{Table: "workspace_documents", Columns: []string{"title", "doc_type", "url", "version", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "title", Kind: fieldString, Required: true},
			{Name: "doc_type", Kind: fieldEnum, Enum: []string{"contract", "brief", "report", "invoice", "other"}},
			{Name: "url", Kind: fieldString},
			{Name: "version", Kind: fieldString},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
	"chat-messages": {
		Key:   "chat-messages",
		Label: "chat message",
		Table: repo.EntityTable{Table: "workspace_chat_messages", Columns: []string{"author", "body", "posted_at", "pinned", "metadata_json"}},
		Fields: []fieldSpec{
			{Name: "author", Kind: fieldString, Required: true},
			{Name: "body", Kind: fieldString, Required: true},
			{Name: "posted_at", Kind: fieldDateTime},
			{Name: "pinned", Kind: fieldBool},
			{Name: "metadata", Kind: fieldMetadata},
		},
	},
}

// entityAliases maps legacy and singular spellings to canonical keys.
var entityAliases = map[string]string{
	"budget_line":     "budget-lines",
	"budget_lines":    "budget-lines",
	"budget-line":     "budget-lines",
	"objective":       "objectives",
	"task":            "tasks",
	"meeting":         "meetings",
	"calendar_event":  "calendar-events",
	"calendar_events": "calendar-events",
	"calendar-event":  "calendar-events",
	"role":            "roles",
	"submission":      "submissions",
	"invite":          "invites",
	"hr_record":       "hr-records",
	"hr_records":      "hr-records",
	"hr-record":       "hr-records",
	"time_entry":      "time-entries",
	"time_entries":    "time-entries",
	"time-entry":      "time-entries",
	"object":          "objects",
	"document":        "documents",
	"chat_message":    "chat-messages",
	"chat_messages":   "chat-messages",
	"chat-message":    "chat-messages",
}

// NormalizeEntityKind resolves aliases to a canonical registry key. The
// second return is false for kinds the registry does not know.
func NormalizeEntityKind(kind string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(kind))
	if alias, ok := entityAliases[k]; ok {
		k = alias
	}
	_, ok := entityRegistry[k]
	return k, ok
}

// EntityKinds lists every canonical entity kind in registry order.
func EntityKinds() []string {
	kinds := make([]string, 0, len(entityRegistry))
	for k := range entityRegistry {
		kinds = append(kinds, k)
	}
	return kinds
}

// prepare validates and coerces a raw payload into column values. On create,
// missing required fields are rejected; on update only provided fields are
// checked, so partial updates work.
func (s entitySpec) prepare(payload map[string]any, isUpdate bool) (map[string]any, error) {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		raw, present := payload[f.Name]
		if !present || raw == nil {
			if f.Required && !isUpdate {
				return nil, validationf(f.Name, "required for %s", s.Label)
			}
			continue
		}
		column := f.Name
		if f.Kind == fieldMetadata {
			column = "metadata_json"
		}
		value, err := coerceField(f, raw)
		if err != nil {
			return nil, err
		}
		out[column] = value
	}
	return out, nil
}

func coerceField(f fieldSpec, raw any) (any, error) {
	switch f.Kind {
	case fieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, validationf(f.Name, "must be a string")
		}
		s = strings.TrimSpace(s)
		if f.Required && s == "" {
			return nil, validationf(f.Name, "must not be empty")
		}
		return s, nil
	case fieldEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, validationf(f.Name, "must be one of %v", f.Enum)
		}
		for _, allowed := range f.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, validationf(f.Name, "%q is not one of %v", s, f.Enum)
	case fieldNumber:
		n, err := coerceNumber(raw)
		if err != nil {
			return nil, validationf(f.Name, "must be a number")
		}
		if f.Bounded && (n < f.Min || n > f.Max) {
			return nil, validationf(f.Name, "must be between %g and %g", f.Min, f.Max)
		}
		return n, nil
	case fieldDateTime:
		s, ok := raw.(string)
		if !ok {
			return nil, validationf(f.Name, "must be a timestamp string")
		}
		t, ok := parseTime(s)
		if !ok {
			return nil, validationf(f.Name, "invalid timestamp %q", s)
		}
		return t.UTC().Format(time.RFC3339), nil
	case fieldDateOnly:
		s, ok := raw.(string)
		if !ok {
			return nil, validationf(f.Name, "must be a date string")
		}
		t, ok := parseTime(s)
		if !ok {
			return nil, validationf(f.Name, "invalid date %q", s)
		}
		return t.UTC().Format("2006-01-02"), nil
	case fieldBool:
		b, err := coerceBool(raw)
		if err != nil {
			return nil, validationf(f.Name, "must be a boolean")
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case fieldMetadata:
		switch v := raw.(type) {
		case string:
			if v != "" && !json.Valid([]byte(v)) {
				return nil, validationf(f.Name, "must be valid JSON")
			}
			return v, nil
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, validationf(f.Name, "must be JSON-encodable")
			}
			return string(encoded), nil
		}
	}
	return nil, fmt.Errorf("unknown field kind %d", f.Kind)
}

func coerceNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", raw)
	}
}

// coerceBool accepts native bools plus the textual forms checkbox-style
// clients send.
func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1", "on":
			return true, nil
		case "false", "no", "n", "0", "off", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean: %v", raw)
}
