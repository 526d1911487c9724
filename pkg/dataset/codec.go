package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireSplit is the JSON shape of one half (train or val) of an instance.
type wireSplit struct {
	Pass   []Image `json:"PASS"`
	NG     []Image `json:"NG"`
	Golden []Image `json:"GOLDEN,omitempty"`
	Delete []Image `json:"DELETE,omitempty"`
}

type wireInstance struct {
	Check bool      `json:"check"`
	Train wireSplit `json:"train"`
	Val   wireSplit `json:"val"`
}

// MarshalJSON encodes the instance in the backend wire shape.
func (in Instance) MarshalJSON() ([]byte, error) {
	w := wireInstance{
		Check: in.Ready,
		Train: wireSplit{
			Pass:   nonNil(in.buckets[TrainPass]),
			NG:     nonNil(in.buckets[TrainNG]),
			Golden: nonNil(in.buckets[Golden]),
			Delete: nonNil(in.buckets[Delete]),
		},
		Val: wireSplit{
			Pass: nonNil(in.buckets[ValPass]),
			NG:   nonNil(in.buckets[ValNG]),
		},
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the backend wire shape. Missing buckets are empty.
// Golden and Delete entries under "val" are not part of the model and are
// rejected so that no image silently disappears.
func (in *Instance) UnmarshalJSON(data []byte) error {
	var w wireInstance
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Val.Golden) > 0 || len(w.Val.Delete) > 0 {
		return fmt.Errorf("dataset: val split cannot hold GOLDEN or DELETE images")
	}
	*in = Instance{Ready: w.Check}
	in.buckets[TrainPass] = w.Train.Pass
	in.buckets[TrainNG] = w.Train.NG
	in.buckets[ValPass] = w.Val.Pass
	in.buckets[ValNG] = w.Val.NG
	in.buckets[Golden] = w.Train.Golden
	in.buckets[Delete] = w.Train.Delete
	return nil
}

func nonNil(imgs []Image) []Image {
	if imgs == nil {
		return []Image{}
	}
	return imgs
}

// MarshalJSON encodes the light sources as an object in order.
func (c Component) MarshalJSON() ([]byte, error) {
	return marshalOrdered(c.lights)
}

// UnmarshalJSON decodes an object of light sources, keeping key order.
func (c *Component) UnmarshalJSON(data []byte) error {
	*c = Component{}
	return decodeOrdered(data, func(key string, raw json.RawMessage) error {
		var in Instance
		if err := json.Unmarshal(raw, &in); err != nil {
			return fmt.Errorf("light %q: %w", key, err)
		}
		c.Set(key, in)
		return nil
	})
}

// MarshalJSON encodes the components as an object in order. ExportID and
// Info travel separately in the fetch response.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return marshalOrdered(s.components)
}

// UnmarshalJSON decodes an object of components, keeping key order. ExportID
// and Info are left untouched.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	s.components = orderedMap[Component]{}
	return decodeOrdered(data, func(key string, raw json.RawMessage) error {
		var c Component
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("component %q: %w", key, err)
		}
		s.Set(key, c)
		return nil
	})
}

type wireCounts struct {
	Pass int `json:"PASS"`
	NG   int `json:"NG"`
}

type wirePanelInfo struct {
	Train wireCounts `json:"train"`
	Val   wireCounts `json:"val"`
}

// MarshalJSON encodes the totals in the backend wire shape.
func (p PanelInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePanelInfo{
		Train: wireCounts{Pass: p.TrainPass, NG: p.TrainNG},
		Val:   wireCounts{Pass: p.ValPass, NG: p.ValNG},
	})
}

// UnmarshalJSON decodes the backend wire shape; missing counts are zero.
func (p *PanelInfo) UnmarshalJSON(data []byte) error {
	var w wirePanelInfo
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = PanelInfo{
		TrainPass: w.Train.Pass,
		TrainNG:   w.Train.NG,
		ValPass:   w.Val.Pass,
		ValNG:     w.Val.NG,
	}
	return nil
}

// decodeOrdered walks a JSON object and calls fn for every member in source
// order. A JSON null decodes as an empty object.
func decodeOrdered(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("dataset: expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("dataset: expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("dataset: value for %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func marshalOrdered[V any](m orderedMap[V]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("dataset: value for %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
