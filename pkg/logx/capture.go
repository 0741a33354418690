package logx

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one decoded log line recorded by a Capture sink.
type Entry struct {
	Level   string
	Message string
	Time    time.Time
	Fields  map[string]any
}

// Str returns the string value of a field, or "" when absent.
func (e Entry) Str(key string) string {
	v, ok := e.Fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Capture is a zerolog sink that keeps every line in memory so tests can
// assert on what agents logged.
//
// Lines that are not JSON are kept with the raw text as Message.
type Capture struct {
	mu      sync.Mutex
	entries []Entry
}

func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.NoLevel, p)
}

func (c *Capture) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if c == nil {
		return len(p), nil
	}
	e := decodeEntry(p)
	if e.Level == "" && level != zerolog.NoLevel {
		e.Level = level.String()
	}
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return len(p), nil
}

// Entries returns a copy of the recorded lines in write order.
func (c *Capture) Entries() []Entry {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Filter returns the recorded lines whose field key equals value.
func (c *Capture) Filter(key, value string) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if e.Str(key) == value {
			out = append(out, e)
		}
	}
	return out
}

func (c *Capture) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Capture) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

func decodeEntry(p []byte) Entry {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Entry{Message: raw, Time: time.Now()}
	}

	e := Entry{Fields: map[string]any{}}
	for k, v := range m {
		switch k {
		case zerolog.LevelFieldName:
			e.Level, _ = v.(string)
		case zerolog.MessageFieldName:
			e.Message, _ = v.(string)
		case zerolog.TimestampFieldName:
			if s, ok := v.(string); ok {
				if t, err := time.Parse(consoleTimeFormat, s); err == nil {
					e.Time = t
				}
			}
		default:
			e.Fields[k] = v
		}
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return e
}
