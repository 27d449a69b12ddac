package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Node is a namespace-agnostic view of one element of a loosely parsed payload.
// Names are local names: "sit:situation" and "situation" both become "situation".
// Repeated elements are kept as repeated children, so a single element and an
// array of one look the same to readers.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Child returns the first child named name, or nil
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns every child named name
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Path follows Child through names
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Value returns the trimmed text of n, or of its first descendant carrying text
// (multilingual DATEX2 strings wrap the value in <values><value>).
func (n *Node) Value() string {
	if n == nil {
		return ""
	}
	if t := strings.TrimSpace(n.Text); t != "" {
		return t
	}
	for _, c := range n.Children {
		if v := c.Value(); v != "" {
			return v
		}
	}
	return ""
}

// Attr returns the attribute named name
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return strings.TrimSpace(n.Attrs[name])
}

// parseXMLTree decodes an XML document into a synthetic document node whose
// children are the top-level elements.
func parseXMLTree(raw []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	doc := &Node{}
	stack := []*Node{doc}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Node{Name: localName(t.Name.Local)}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				if el.Attrs == nil {
					el.Attrs = make(map[string]string, len(t.Attr))
				}
				el.Attrs[localName(a.Name.Local)] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			cur := stack[len(stack)-1]
			if cur != doc {
				cur.Text += string(t)
			}
		}
	}
	if len(doc.Children) == 0 {
		return nil, errors.New("decode xml: no root element")
	}
	return doc, nil
}

// treeFromJSON converts a decoded JSON value into the same Node shape produced
// for XML. Keys are stripped of namespace prefixes, "@_x"/"@x" keys become
// attributes and "#text" becomes text. Arrays expand into repeated children.
func treeFromJSON(name string, v any) *Node {
	n := &Node{Name: localName(name)}
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := val[k]
			switch {
			case k == "#text":
				n.Text = scalarString(child)
			case strings.HasPrefix(k, "@"):
				if n.Attrs == nil {
					n.Attrs = make(map[string]string)
				}
				n.Attrs[localName(strings.TrimPrefix(strings.TrimPrefix(k, "@"), "_"))] = scalarString(child)
			default:
				if arr, ok := child.([]any); ok {
					for _, item := range arr {
						n.Children = append(n.Children, treeFromJSON(k, item))
					}
					continue
				}
				n.Children = append(n.Children, treeFromJSON(k, child))
			}
		}
	case []any:
		for _, item := range val {
			n.Children = append(n.Children, treeFromJSON(name, item))
		}
	default:
		n.Text = scalarString(val)
	}
	return n
}

func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// scalarString renders a JSON scalar the way it appeared in the source
func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
