package layer

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// Document is the parsed form of a single context document: YAML
// front-matter describing the layer and its sections, followed by an
// optional markdown body. The body is only consulted when the front-matter
// declares no sections, in which case it becomes a single context entry.
type Document struct {
	Scope        string        `yaml:"scope"`
	Key          string        `yaml:"key,omitempty"`
	Pinned       bool          `yaml:"pinned,omitempty"`
	LastModified time.Time     `yaml:"last_modified,omitempty"`
	Sections     []DocSection  `yaml:"sections,omitempty"`
	Body         string        `yaml:"-"`
}

// DocSection mirrors Section in document form.
type DocSection struct {
	Kind    string     `yaml:"kind"`
	Entries []DocEntry `yaml:"entries,omitempty"`
}

// DocEntry mirrors Entry in document form. Optional fields are pointers so
// the loader can distinguish "absent" from zero values: an absent priority
// defaults to the insertion index and an absent token estimate is computed
// by the tokenizer.
type DocEntry struct {
	ID              string     `yaml:"id,omitempty"`
	Key             string     `yaml:"key,omitempty"`
	Value           string     `yaml:"value"`
	CreatedAt       *time.Time `yaml:"created_at,omitempty"`
	Pinned          bool       `yaml:"pinned,omitempty"`
	Priority        *int       `yaml:"priority,omitempty"`
	EstimatedTokens *int       `yaml:"estimated_tokens,omitempty"`
}

// Parse deserializes a raw context document into a Document.
func Parse(raw []byte) (*Document, error) {
	s := string(raw)
	if !strings.HasPrefix(s, frontMatterDelimiter) {
		return nil, fmt.Errorf("layer: missing front-matter delimiter")
	}
	rest := s[len(frontMatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontMatterDelimiter)
	if idx == -1 {
		return nil, fmt.Errorf("layer: unclosed front-matter block")
	}
	yamlBlock := rest[:idx]
	bodyRaw := rest[idx+len("\n"+frontMatterDelimiter):]
	body := bodyRaw
	if strings.HasPrefix(bodyRaw, "\n\n") {
		body = bodyRaw[2:]
	} else if strings.HasPrefix(bodyRaw, "\n") {
		body = bodyRaw[1:]
	}

	var doc Document
	if err := yaml.Unmarshal([]byte(yamlBlock), &doc); err != nil {
		return nil, fmt.Errorf("layer: front-matter parse error: %w", err)
	}
	doc.Body = strings.TrimRight(body, "\n")
	return &doc, nil
}

// Serialize renders a Document back to its on-disk byte representation.
func Serialize(doc *Document) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("layer: serialize error: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")
	sb.Write(yamlBytes)
	sb.WriteString(frontMatterDelimiter + "\n")
	if doc.Body != "" {
		sb.WriteString("\n" + doc.Body + "\n")
	}
	return []byte(sb.String()), nil
}
