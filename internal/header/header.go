// Package header reads and writes the key-value block at the start of a post.
//
// The block is YAML between two "---" marker lines:
//
//	---
//	liked: false
//	author_username: local
//	author_display_name: You
//	---
//	body text
package header

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/starford/echochamber/internal/models"
)

const delim = "---"

// Parse extracts the header and body from raw content. Content without a
// header, or with a header that does not decode, is returned whole as body
// and ok is false.
func Parse(content []byte) (h models.Header, body []byte, ok bool) {
	if _, _, found := split(content); !found {
		return models.Header{}, content, false
	}
	body, err := frontmatter.Parse(bytes.NewReader(content), &h)
	if err != nil {
		return models.Header{}, content, false
	}
	return h, body, true
}

// Compose prefixes body with a freshly generated header block.
func Compose(h models.Header, body string) ([]byte, error) {
	block, err := yaml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("header: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(block)
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// SetLiked returns content with the header's liked field set to liked.
// Only the header block is rewritten; every byte after the closing marker is
// kept as is. Content without a header gets one.
func SetLiked(content []byte, liked bool) ([]byte, error) {
	block, rest, found := split(content)
	if !found {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "%s\nliked: %t\n%s\n", delim, liked, delim)
		buf.Write(content)
		return buf.Bytes(), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, fmt.Errorf("header: decode: %w", err)
	}
	var mapping *yaml.Node
	switch {
	case doc.Kind == 0:
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	case len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode:
		mapping = doc.Content[0]
	default:
		return nil, fmt.Errorf("header: block is not a key-value mapping")
	}
	setBool(mapping, "liked", liked)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("header: encode: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(out)
	buf.WriteString(delim + "\n")
	buf.Write(rest)
	return buf.Bytes(), nil
}

func setBool(mapping *yaml.Node, key string, v bool) {
	val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", v)}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = val
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
}

// split separates the YAML block from everything after the closing marker
// line. The header must start on the first line.
func split(content []byte) (block, rest []byte, found bool) {
	first := bytes.IndexByte(content, '\n')
	if first < 0 || string(bytes.TrimRight(content[:first], "\r")) != delim {
		return nil, content, false
	}
	pos := first + 1
	for pos <= len(content) {
		end := bytes.IndexByte(content[pos:], '\n')
		var line []byte
		next := len(content)
		if end >= 0 {
			line = content[pos : pos+end]
			next = pos + end + 1
		} else {
			line = content[pos:]
		}
		if string(bytes.TrimRight(line, "\r")) == delim {
			return content[first+1 : pos], content[next:], true
		}
		if end < 0 {
			break
		}
		pos = next
	}
	return nil, content, false
}
