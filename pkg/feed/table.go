package feed

import (
	"fmt"
	"time"
)

// MaxTableLen caps a keyed table; on overflow the older half is dropped.
const MaxTableLen = 200

type row map[string]any

// tables is the local image of the venue's realtime tables, kept in sync from
// partial/insert/update/delete messages. Rows are matched by the keys sent with the partial.
// @dev: not safe for concurrent use; owned by the stream's read goroutine
type tables struct {
	data map[string][]row
	keys map[string][]string
}

func newTables() *tables {
	return &tables{
		data: make(map[string][]row),
		keys: make(map[string][]string),
	}
}

func (t *tables) reset() {
	t.data = make(map[string][]row)
	t.keys = make(map[string][]string)
}

func (t *tables) apply(msg wsTableMessage) error {
	table := msg.Table
	switch msg.Action {
	case "partial":
		t.data[table] = append([]row(nil), msg.Data...)
		t.keys[table] = msg.Keys
	case "insert":
		t.data[table] = append(t.data[table], msg.Data...)
		if len(t.data[table]) > MaxTableLen {
			t.data[table] = t.data[table][MaxTableLen/2:]
		}
	case "update":
		for _, update := range msg.Data {
			item := t.find(table, update)
			if item == nil {
				// update before the partial arrived
				continue
			}
			for k, v := range update {
				item[k] = v
			}
		}
	case "delete":
		for _, del := range msg.Data {
			rows := t.data[table]
			for i, item := range rows {
				if matchKeys(t.keys[table], item, del) {
					t.data[table] = append(rows[:i], rows[i+1:]...)
					break
				}
			}
		}
	default:
		return fmt.Errorf("unknown table action: %s", msg.Action)
	}
	return nil
}

func (t *tables) find(table string, match row) row {
	for _, item := range t.data[table] {
		if matchKeys(t.keys[table], item, match) {
			return item
		}
	}
	return nil
}

func matchKeys(keys []string, item row, match row) bool {
	for _, key := range keys {
		if item[key] != match[key] {
			return false
		}
	}
	return true
}

// lastPrice reads lastPrice from the instrument row of symbol.
func (t *tables) lastPrice(symbol string) (float64, bool) {
	for _, item := range t.data["instrument"] {
		if item["symbol"] != symbol {
			continue
		}
		price, ok := item["lastPrice"].(float64)
		return price, ok
	}
	return 0, false
}

// timestamp reads the venue timestamp of the instrument row, falling back to fallback.
func (t *tables) timestamp(symbol string, fallback time.Time) time.Time {
	for _, item := range t.data["instrument"] {
		if item["symbol"] != symbol {
			continue
		}
		if raw, ok := item["timestamp"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				return ts
			}
		}
	}
	return fallback
}
