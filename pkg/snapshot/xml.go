package snapshot

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// xmlRootTag is the document root of an XML-encoded project.
const xmlRootTag = "UKSProject"

const xmlHeader = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"

// element is a minimal XML tree node. The codec below maps arbitrary
// JSON-shaped values (maps, slices, scalars) onto it rather than binding
// struct tags, so the same walker serves any document layout.
type element struct {
	name     string
	text     string
	children []*element
}

// XML renders the project as a structural XML document rooted at
// UKSProject. Map keys are emitted in sorted order so output is
// deterministic; nil fields are omitted entirely.
func (p *Project) XML() ([]byte, error) {
	// Lower the typed project to generic maps/slices first; the JSON round
	// trip is what keeps the two encodings structurally identical.
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}

	root := buildElement(xmlRootTag, generic)
	var b strings.Builder
	b.WriteString(xmlHeader)
	writeElement(&b, root, 0)
	return []byte(b.String()), nil
}

// FromXML parses a structural XML project document.
func FromXML(data []byte) (*Project, error) {
	root, err := parseElement(data)
	if err != nil {
		return nil, fmt.Errorf("parse project xml: %w", err)
	}
	generic := decodeElement(root)

	// Empty container elements decode as empty strings; at the project
	// level that means "no entries", not a scalar. A childless root is the
	// fully empty project.
	m, ok := generic.(map[string]any)
	if !ok {
		if s, _ := generic.(string); s == "" {
			return &Project{}, nil
		}
		return nil, fmt.Errorf("decode project xml: unexpected document shape")
	}
	for _, key := range []string{"things", "statements"} {
		if s, ok := m[key].(string); ok && s == "" {
			m[key] = nil
		}
	}

	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("decode project xml: %w", err)
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode project xml: %w", err)
	}
	return &p, nil
}

// buildElement maps a JSON-shaped value onto an element tree: maps become
// child elements per key (sorted), slices become repeated <item> children,
// scalars become text. Nil values produce no element at all, which is why
// the caller skips nil map entries.
func buildElement(name string, value any) *element {
	elem := &element{name: name}
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v[k] == nil {
				continue
			}
			elem.children = append(elem.children, buildElement(k, v[k]))
		}
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			elem.children = append(elem.children, buildElement("item", item))
		}
	case string:
		elem.text = v
	case bool:
		elem.text = strconv.FormatBool(v)
	case float64:
		// 'f' keeps large values out of exponent notation so the decoder's
		// type sniffing can read them back.
		elem.text = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		elem.text = fmt.Sprintf("%v", v)
	}
	return elem
}

// decodeElement walks an element tree back into JSON-shaped values. Leaf
// text is type-sniffed: true/false to bool, text containing "." to float64,
// otherwise int64 when parseable, else string. Children all tagged <item>
// form a slice; repeated sibling tags coalesce into one.
func decodeElement(e *element) any {
	if len(e.children) == 0 {
		return sniffScalar(e.text)
	}

	allItems := true
	for _, c := range e.children {
		if c.name != "item" {
			allItems = false
			break
		}
	}
	if allItems {
		list := make([]any, len(e.children))
		for i, c := range e.children {
			list[i] = decodeElement(c)
		}
		return list
	}

	result := make(map[string]any)
	for _, c := range e.children {
		value := decodeElement(c)
		if existing, ok := result[c.name]; ok {
			if list, ok := existing.([]any); ok {
				result[c.name] = append(list, value)
			} else {
				result[c.name] = []any{existing, value}
			}
		} else {
			result[c.name] = value
		}
	}
	return result
}

func sniffScalar(text string) any {
	lower := strings.ToLower(text)
	if lower == "true" || lower == "false" {
		return lower == "true"
	}
	if strings.Contains(text, ".") {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
		return text
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i
	}
	return text
}

// parseElement tokenizes data into an element tree. Unlike lenient scrapers
// this propagates syntax errors: a truncated or malformed document must
// fail loudly, not load half a project.
func parseElement(data []byte) (*element, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	root := &element{}
	stack := []*element{root}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			elem := &element{name: t.Name.Local}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, elem)
			stack = append(stack, elem)

		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			if text := strings.TrimSpace(string(t)); text != "" {
				stack[len(stack)-1].text = text
			}
		}
	}

	if len(root.children) == 0 {
		return nil, fmt.Errorf("document has no root element")
	}
	return root.children[0], nil
}

// writeElement renders elem with two-space indentation. Text nodes are
// escaped; the decoder unescapes them symmetrically.
func writeElement(b *strings.Builder, elem *element, indent int) {
	indentStr := strings.Repeat("  ", indent)

	b.WriteString(indentStr)
	b.WriteString("<")
	b.WriteString(elem.name)

	if len(elem.children) == 0 && elem.text == "" {
		b.WriteString("/>\n")
		return
	}
	b.WriteString(">")

	if elem.text != "" {
		_ = xml.EscapeText(b, []byte(elem.text))
	} else {
		b.WriteString("\n")
	}

	for _, child := range elem.children {
		writeElement(b, child, indent+1)
	}

	if len(elem.children) > 0 {
		b.WriteString(indentStr)
	}
	b.WriteString("</")
	b.WriteString(elem.name)
	b.WriteString(">\n")
}
