// Package reconcile collapses per-source extracted values into one final
// value per attribute. Every policy is a pure function of its inputs and
// returns a fresh map; reapplying a policy to unchanged input is a no-op.
package reconcile

import (
	"fmt"
	"strings"

	"paxth/internal/model"
)

// Policy names accepted by Apply.
const (
	PolicyBest   = "best"
	PolicySource = "source"
	PolicyManual = "manual"
	PolicyClear  = "clear"
)

// BestAvailable takes, per attribute, the first non-empty value in source
// priority order. Attributes with no value anywhere keep their current final
// value.
func BestAvailable(m model.AttributeExtractionMatrix, final model.FinalValueMap) model.FinalValueMap {
	out := clone(final)
	for attr, row := range m {
		for _, src := range model.SourcePriority {
			if v := row[src]; strings.TrimSpace(v) != "" {
				out[attr] = v
				break
			}
		}
	}
	return out
}

// SingleSource copies every non-empty value from src. Empty cells leave the
// existing final value alone.
func SingleSource(m model.AttributeExtractionMatrix, final model.FinalValueMap, src model.SourceKey) model.FinalValueMap {
	out := clone(final)
	for attr, row := range m {
		if v := row[src]; strings.TrimSpace(v) != "" {
			out[attr] = v
		}
	}
	return out
}

// SetManual overwrites one attribute's final value.
func SetManual(final model.FinalValueMap, attribute, value string) model.FinalValueMap {
	out := clone(final)
	out[attribute] = value
	return out
}

// SetSourceValue overwrites the value shown for one attribute and source.
// The matrix passed in is not modified.
func SetSourceValue(m model.AttributeExtractionMatrix, attribute string, src model.SourceKey, value string) model.AttributeExtractionMatrix {
	out := make(model.AttributeExtractionMatrix, len(m))
	for attr, row := range m {
		cp := make(map[model.SourceKey]string, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[attr] = cp
	}
	out.Set(attribute, src, value)
	return out
}

// Clear empties the final values.
func Clear() model.FinalValueMap {
	return model.FinalValueMap{}
}

// Action is a reconciliation request coming from an operator.
type Action struct {
	Policy    string `json:"policy"`
	Source    string `json:"source,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value"`
}

// Apply runs a, returning the updated matrix and final values.
func Apply(m model.AttributeExtractionMatrix, final model.FinalValueMap, a Action) (model.AttributeExtractionMatrix, model.FinalValueMap, error) {
	switch strings.ToLower(strings.TrimSpace(a.Policy)) {
	case PolicyBest:
		return m, BestAvailable(m, final), nil
	case PolicySource:
		src, err := model.ParseSourceKey(a.Source)
		if err != nil {
			return m, final, err
		}
		return m, SingleSource(m, final, src), nil
	case PolicyManual:
		if a.Attribute == "" {
			return m, final, fmt.Errorf("manual reconciliation needs an attribute")
		}
		if _, ok := m[a.Attribute]; !ok {
			return m, final, fmt.Errorf("unknown attribute %q", a.Attribute)
		}
		if a.Source != "" {
			src, err := model.ParseSourceKey(a.Source)
			if err != nil {
				return m, final, err
			}
			return SetSourceValue(m, a.Attribute, src, a.Value), final, nil
		}
		return m, SetManual(final, a.Attribute, a.Value), nil
	case PolicyClear:
		return m, Clear(), nil
	default:
		return m, final, fmt.Errorf("unknown reconciliation policy %q", a.Policy)
	}
}

func clone(final model.FinalValueMap) model.FinalValueMap {
	out := make(model.FinalValueMap, len(final))
	for k, v := range final {
		out[k] = v
	}
	return out
}
