package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
)

// SourceKind identifies the upstream payload family
type SourceKind string

const (
	KindDatex2 SourceKind = "datex2"
	KindREST   SourceKind = "rest"
)

// ErrUnknownPayload is returned when a payload matches none of the known shapes
var ErrUnknownPayload = errors.New("unknown feed payload shape")

// Payload is one of the recognized input shapes:
// Datex2Payload, RestArrayPayload, RestWrappedPayload, RestSinglePayload.
type Payload interface {
	extract(now time.Time) []domain.Baliza
}

// Datex2Payload is a DATEX2 situation publication, from XML or from an
// XML-to-object JSON rendering
type Datex2Payload struct {
	Root *Node
}

// RestArrayPayload is a bare JSON array of records
type RestArrayPayload struct {
	Items []map[string]any
}

// RestWrappedPayload is an object holding the records under one container key
type RestWrappedPayload struct {
	Key   string
	Items []map[string]any
}

// RestSinglePayload is an object that matched no container key and is read as one record
type RestSinglePayload struct {
	Item map[string]any
}

// restContainerKeys are probed in order on REST objects
var restContainerKeys = []string{"balizas", "eventos", "data"}

// Detect decodes raw and classifies it into a Payload
func Detect(raw []byte, kind SourceKind) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnknownPayload)
	}

	if trimmed[0] == '<' {
		doc, err := parseXMLTree(trimmed)
		if err != nil {
			return nil, err
		}
		return Datex2Payload{Root: doc}, nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	switch val := v.(type) {
	case []any:
		return RestArrayPayload{Items: objects(val)}, nil
	case map[string]any:
		if kind == KindDatex2 || hasPayloadKey(val) {
			return Datex2Payload{Root: treeFromJSON("", val)}, nil
		}
		for _, key := range restContainerKeys {
			if arr, ok := val[key].([]any); ok {
				return RestWrappedPayload{Key: key, Items: objects(arr)}, nil
			}
		}
		return RestSinglePayload{Item: val}, nil
	default:
		return nil, fmt.Errorf("%w: top-level %T", ErrUnknownPayload, v)
	}
}

// Normalize turns a raw payload into canonical reports. Records without a
// usable position are dropped.
func Normalize(raw []byte, kind SourceKind, now time.Time) ([]domain.Baliza, error) {
	p, err := Detect(raw, kind)
	if err != nil {
		return nil, err
	}
	return p.extract(now), nil
}

func (p Datex2Payload) extract(now time.Time) []domain.Baliza {
	return extractDatex2(p.Root, now)
}

func (p RestArrayPayload) extract(now time.Time) []domain.Baliza {
	return extractRESTRecords(p.Items, now)
}

func (p RestWrappedPayload) extract(now time.Time) []domain.Baliza {
	return extractRESTRecords(p.Items, now)
}

func (p RestSinglePayload) extract(now time.Time) []domain.Baliza {
	return extractRESTRecords([]map[string]any{p.Item}, now)
}

func hasPayloadKey(m map[string]any) bool {
	for k := range m {
		if localName(k) == "payload" {
			return true
		}
	}
	return false
}

func objects(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
