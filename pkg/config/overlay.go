package config

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// InstancePrefix marks per-member runtime values (for example counters a plugin keeps).
const InstancePrefix = "instance."

// Overlay is a flat set of dotted config keys, as stored in the agents,
// contexts_members and settings tables.
type Overlay map[string]interface{}

func ParseOverlay(s string) (Overlay, error) {
	ret := Overlay{}
	if strings.TrimSpace(s) == "" {
		return ret, nil
	}
	if err := json.Unmarshal([]byte(s), &ret); err != nil {
		return nil, errors.Wrap(err, "could not parse config overlay")
	}
	return ret, nil
}

func (o Overlay) JSON() (string, error) {
	if o == nil {
		return "{}", nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return "", errors.Wrap(err, "could not serialize config overlay")
	}
	return string(b), nil
}

func (o Overlay) Clone() Overlay {
	if o == nil {
		return Overlay{}
	}
	return clone.Clone(o).(Overlay)
}

// Merge layers overlays from lowest to highest precedence.
func Merge(layers ...Overlay) Overlay {
	ret := Overlay{}
	for _, layer := range layers {
		for k, v := range layer {
			ret[k] = v
		}
	}
	return ret
}

// Instance returns the instance.* keys with the prefix stripped.
func (o Overlay) Instance() map[string]interface{} {
	ret := map[string]interface{}{}
	for k, v := range o {
		if strings.HasPrefix(k, InstancePrefix) {
			ret[strings.TrimPrefix(k, InstancePrefix)] = v
		}
	}
	return ret
}

func (o Overlay) Keys() []string {
	ret := make([]string, 0, len(o))
	for k := range o {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
