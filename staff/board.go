package staff

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"intake-relay/models"
	"intake-relay/presence"
)

// FieldOrder is the display order of the known intake form fields. Anything
// else in a draft is shown after these, sorted by name.
var FieldOrder = []string{
	"firstName",
	"middleName",
	"lastName",
	"dob",
	"gender",
	"phone",
	"email",
	"address",
	"preferredLanguage",
	"nationality",
	"religion",
	"emergencyName",
	"emergencyRelation",
}

// Field is one rendered draft entry. Value is empty when the patient has not
// filled the field in.
type Field struct {
	Name  string
	Value string
}

// View is what a staff display shows at one instant.
type View struct {
	SessionID    string
	HasData      bool
	Label        models.Status
	LastActiveAt int64
	Fields       []Field
}

// LastActiveText renders the last activity time, or "-" if there is none.
func (v View) LastActiveText(loc *time.Location) string {
	if v.LastActiveAt == 0 {
		return "-"
	}
	return time.UnixMilli(v.LastActiveAt).In(loc).Format("2006-01-02 15:04:05")
}

// Board keeps the latest staff:update for one session. It satisfies
// presence.Source.
type Board struct {
	sessionID string

	mu           sync.RWMutex
	hasData      bool
	draft        models.Draft
	status       models.Status
	lastActiveAt int64
}

func NewBoard(sessionID string) *Board {
	return &Board{
		sessionID: sessionID,
		draft:     models.Draft{},
		status:    models.StatusInactive,
	}
}

// Apply stores a raw staff:update payload. Missing or mistyped fields are
// treated as absent instead of failing; only data that is not a JSON object is
// rejected.
func (b *Board) Apply(data json.RawMessage) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal staff update: %w", err)
	}

	var (
		draft  models.Draft
		status models.Status
		last   int64
	)
	if v, ok := raw["draft"]; ok {
		json.Unmarshal(v, &draft)
	}
	if v, ok := raw["status"]; ok {
		json.Unmarshal(v, &status)
	}
	if v, ok := raw["lastActiveAt"]; ok {
		var f float64
		if json.Unmarshal(v, &f) == nil {
			last = int64(f)
		}
	}
	if draft == nil {
		draft = models.Draft{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasData = true
	b.draft = draft
	b.status = status
	b.lastActiveAt = last
	return nil
}

func (b *Board) Latest() (models.Status, int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status, b.lastActiveAt
}

// View classifies the stored payload against now (epoch milliseconds).
func (b *Board) View(now int64) View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return View{
		SessionID:    b.sessionID,
		HasData:      b.hasData,
		Label:        presence.Classify(b.status, b.lastActiveAt, now),
		LastActiveAt: b.lastActiveAt,
		Fields:       fields(b.draft),
	}
}

func fields(draft models.Draft) []Field {
	out := make([]Field, 0, len(FieldOrder)+len(draft))
	known := make(map[string]bool, len(FieldOrder))
	for _, name := range FieldOrder {
		known[name] = true
		out = append(out, Field{Name: name, Value: render(draft[name])})
	}
	var extra []string
	for name := range draft {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, Field{Name: name, Value: render(draft[name])})
	}
	return out
}

func render(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
