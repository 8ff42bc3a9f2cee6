package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ModelList is a decoded model listing. Remote services answer in one of
// several shapes; the concrete type is one of BareModelList, DataModelList,
// NamedModelList or UnknownModelList.
type ModelList interface {
	// Names returns the model identifiers, dropping entries that carry none.
	Names() []string
}

// BareModelList is a top-level array: ["a", {"id":"b"}].
type BareModelList []json.RawMessage

// DataModelList is the OpenAI-style object: {"data":[{"id":"a"}, "b"]}.
type DataModelList []json.RawMessage

// NamedModelList is the {"models":["a","b"]} object. Only strings count.
type NamedModelList []json.RawMessage

// UnknownModelList is any other JSON value.
type UnknownModelList struct{}

func (l BareModelList) Names() []string  { return collect(l, modelID) }
func (l DataModelList) Names() []string  { return collect(l, modelID) }
func (l NamedModelList) Names() []string { return collect(l, modelString) }
func (UnknownModelList) Names() []string { return []string{} }

// ParseModelList classifies a model listing body.
func ParseModelList(data []byte) (ModelList, error) {
	var v json.RawMessage
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}

	var bare []json.RawMessage
	if err := json.Unmarshal(v, &bare); err == nil && bare != nil {
		return BareModelList(bare), nil
	}

	// A map keeps key matching exact: "DATA" is not "data".
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return UnknownModelList{}, nil
		}
		return nil, fmt.Errorf("decoding model list: %w", err)
	}

	if entries := rawArray(obj["data"]); entries != nil {
		return DataModelList(entries), nil
	}
	if entries := rawArray(obj["models"]); entries != nil {
		return NamedModelList(entries), nil
	}
	return UnknownModelList{}, nil
}

// rawArray returns the elements of a JSON array, or nil for anything else.
func rawArray(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

// NormalizeModels reduces any accepted model listing shape to a flat list of
// model identifiers.
func NormalizeModels(data []byte) ([]string, error) {
	list, err := ParseModelList(data)
	if err != nil {
		return nil, err
	}
	return list.Names(), nil
}

func collect(entries []json.RawMessage, name func(json.RawMessage) (string, bool)) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if s, ok := name(e); ok {
			out = append(out, s)
		}
	}
	return out
}

func modelString(raw json.RawMessage) (string, bool) {
	if string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func modelID(raw json.RawMessage) (string, bool) {
	if s, ok := modelString(raw); ok {
		return s, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	id, ok := obj["id"]
	if !ok {
		return "", false
	}
	return modelString(id)
}
