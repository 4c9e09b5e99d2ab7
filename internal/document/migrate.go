package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/starford/tasklet/internal/checksum"
)

// Migrate normalizes arbitrary decoded JSON into a current-version Document.
// It never fails: anything unusable falls back to its default. Migrate is
// deterministic and idempotent, so items missing an id receive one derived
// from their content and position.
func Migrate(raw any) Document {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Default()
	}

	doc := Document{
		Version: migrateVersion(obj["version"]),
		Prefs:   migratePrefs(obj["prefs"]),
		Items:   []Item{},
	}

	list, _ := obj["items"].([]any)
	seen := make(map[string]struct{}, len(list))
	for i, v := range list {
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		item := migrateItem(fields)
		if _, dup := seen[item.ID]; item.ID == "" || dup {
			item.ID = deriveID(item, i)
		}
		seen[item.ID] = struct{}{}
		doc.Items = append(doc.Items, item)
	}
	return doc
}

func migrateVersion(v any) int {
	n, ok := toInt64(v)
	switch {
	case !ok || n < CurrentVersion:
		return CurrentVersion
	case n > math.MaxInt32:
		return math.MaxInt32
	}
	return int(n)
}

func migratePrefs(v any) Prefs {
	prefs := DefaultPrefs()
	obj, ok := v.(map[string]any)
	if !ok {
		return prefs
	}
	for key, val := range obj {
		switch key {
		case prefTheme:
			if s, ok := val.(string); ok {
				prefs.Theme = s
			}
		case prefBgImageDataURL:
			if s, ok := val.(string); ok {
				prefs.BgImageDataURL = s
			}
		case prefFilter:
			if s, ok := val.(string); ok {
				prefs.Filter = s
			}
		case prefLastUndo:
			prefs.LastUndo = migrateUndo(val)
		case prefLastLongtermReset:
			if s, ok := val.(string); ok {
				prefs.LastLongtermReset = s
			}
		default:
			data, err := json.Marshal(val)
			if err != nil {
				continue
			}
			if prefs.Extra == nil {
				prefs.Extra = map[string]json.RawMessage{}
			}
			prefs.Extra[key] = data
		}
	}
	return prefs
}

func migrateUndo(v any) *Undo {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	id, _ := obj["itemId"].(string)
	if id == "" {
		return nil
	}
	from, _ := obj["from"].(string)
	sec := Section(from)
	if !sec.Valid() || sec == Trash {
		sec = InProgress
	}
	return &Undo{ItemID: id, From: sec}
}

func migrateItem(obj map[string]any) Item {
	item := Item{Section: InProgress}
	item.ID, _ = obj["id"].(string)
	item.Text, _ = obj["text"].(string)
	if s, ok := obj["section"].(string); ok && Section(s).Valid() {
		item.Section = Section(s)
	}
	if n, ok := toInt64(obj["createdAt"]); ok && n >= 0 {
		item.CreatedAt = Timestamp(n)
	}
	item.UpdatedAt = item.CreatedAt
	if n, ok := toInt64(obj["updatedAt"]); ok && n >= 0 {
		item.UpdatedAt = Timestamp(n)
	}
	item.DoneToday, _ = obj["doneToday"].(bool)
	if s, ok := obj["trashedFrom"].(string); ok {
		if from := Section(s); from.Valid() && from != Trash {
			item.TrashedFrom = from
		}
	}
	return item
}

func deriveID(item Item, index int) string {
	seed := fmt.Sprintf("%d|%d|%s", index, item.CreatedAt, item.Text)
	return "todo-" + checksum.Short([]byte(seed), 16)
}

// toInt64 accepts the number representations produced by encoding/json.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return clampFloat(f), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return clampFloat(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		// ParseInt saturates on overflow.
		return i, err == nil || errors.Is(err, strconv.ErrRange)
	}
	return 0, false
}

// clampFloat converts f to int64, saturating at the int64 bounds.
func clampFloat(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}
