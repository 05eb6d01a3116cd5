package completion

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Extractor pulls the expected array field out of a raw completion response.
type Extractor interface {
	Name() string
	Extract(raw []byte, key string) ([]json.RawMessage, bool)
}

// DefaultExtractors lists the strategies in priority order.
func DefaultExtractors() []Extractor {
	return []Extractor{parsedField{}, outputText{}, locatedObject{}}
}

// Extract runs extractors in order; the first that yields key wins.
func Extract(extractors []Extractor, raw []byte, key string) ([]json.RawMessage, string, bool) {
	for _, ex := range extractors {
		if items, ok := ex.Extract(raw, key); ok {
			return items, ex.Name(), true
		}
	}
	return nil, "", false
}

// parsedField reads a structured object the API already decoded for us.
type parsedField struct{}

func (parsedField) Name() string { return "parsed_field" }

func (parsedField) Extract(raw []byte, key string) ([]json.RawMessage, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	esc := gjsonEscape(key)
	for _, path := range []string{"output_parsed." + esc, "parsed." + esc} {
		if items, ok := rawArray(gjson.GetBytes(raw, path)); ok {
			return items, true
		}
	}
	var (
		found []json.RawMessage
		ok    bool
	)
	gjson.GetBytes(raw, "output").ForEach(func(_, out gjson.Result) bool {
		out.Get("content").ForEach(func(_, block gjson.Result) bool {
			found, ok = rawArray(block.Get("parsed." + esc))
			return !ok
		})
		return !ok
	})
	return found, ok
}

// outputText concatenates text blocks and decodes them as one JSON document.
type outputText struct{}

func (outputText) Name() string { return "output_text" }

func (outputText) Extract(raw []byte, key string) ([]json.RawMessage, bool) {
	text := strings.TrimSpace(collectText(raw))
	if text == "" || !gjson.Valid(text) {
		return nil, false
	}
	return rawArray(gjson.Get(text, gjsonEscape(key)))
}

// locatedObject finds `{"<key>":` in free text and decodes the object starting there.
type locatedObject struct{}

func (locatedObject) Name() string { return "located_object" }

func (locatedObject) Extract(raw []byte, key string) ([]json.RawMessage, bool) {
	pattern := regexp.MustCompile(`\{\s*"` + regexp.QuoteMeta(key) + `"\s*:`)
	for _, haystack := range []string{collectText(raw), string(raw)} {
		loc := pattern.FindStringIndex(haystack)
		if loc == nil {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.NewDecoder(strings.NewReader(haystack[loc[0]:])).Decode(&obj); err != nil {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(obj[key], &items); err != nil || items == nil {
			continue
		}
		return items, true
	}
	return nil, false
}

// collectText gathers every known text-bearing envelope field.
func collectText(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	var b strings.Builder
	if t := gjson.GetBytes(raw, "output_text"); t.Type == gjson.String {
		b.WriteString(t.String())
	}
	gjson.GetBytes(raw, "output").ForEach(func(_, out gjson.Result) bool {
		out.Get("content").ForEach(func(_, block gjson.Result) bool {
			switch block.Get("type").String() {
			case "output_text", "text":
				b.WriteString(block.Get("text").String())
			}
			return true
		})
		return true
	})
	if b.Len() == 0 {
		b.WriteString(gjson.GetBytes(raw, "choices.0.message.content").String())
	}
	return b.String()
}

func rawArray(r gjson.Result) ([]json.RawMessage, bool) {
	if !r.IsArray() {
		return nil, false
	}
	arr := r.Array()
	items := make([]json.RawMessage, 0, len(arr))
	for _, el := range arr {
		items = append(items, json.RawMessage(el.Raw))
	}
	return items, true
}

func gjsonEscape(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`)
	return r.Replace(key)
}
