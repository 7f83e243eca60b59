package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxth/internal/model"
)

func colorMatrix() model.AttributeExtractionMatrix {
	return model.AttributeExtractionMatrix{
		"color": {model.SourceURL1: "", model.SourceURL2: "Black", model.SourceURL3: "White"},
		"brand": {model.SourceURL1: "", model.SourceURL2: "", model.SourceURL3: "", model.SourceDocument: "Acme"},
		"model": {model.SourceURL1: "", model.SourceURL2: "", model.SourceURL3: ""},
	}
}

func TestBestAvailable(t *testing.T) {
	prior := model.FinalValueMap{"model": "X1"}

	got := BestAvailable(colorMatrix(), prior)

	assert.Equal(t, model.FinalValueMap{"color": "Black", "brand": "Acme", "model": "X1"}, got)
	assert.Equal(t, model.FinalValueMap{"model": "X1"}, prior)
	assert.Equal(t, got, BestAvailable(colorMatrix(), got))
}

func TestSingleSourceKeepsPriorOnEmpty(t *testing.T) {
	prior := model.FinalValueMap{"color": "Red", "brand": "Mine"}

	got := SingleSource(colorMatrix(), prior, model.SourceURL3)

	assert.Equal(t, "White", got["color"])
	assert.Equal(t, "Mine", got["brand"])
	_, ok := got["model"]
	assert.False(t, ok)
	assert.Equal(t, got, SingleSource(colorMatrix(), got, model.SourceURL3))
}

func TestSetManualAndClear(t *testing.T) {
	got := SetManual(nil, "color", "Graphite")
	assert.Equal(t, model.FinalValueMap{"color": "Graphite"}, got)
	assert.Equal(t, got, SetManual(got, "color", "Graphite"))

	assert.Empty(t, Clear())
	assert.Equal(t, Clear(), Clear())
}

func TestSetSourceValueCopies(t *testing.T) {
	m := colorMatrix()

	got := SetSourceValue(m, "color", model.SourceURL1, "Blue")

	assert.Equal(t, "Blue", got.Get("color", model.SourceURL1))
	assert.Equal(t, "", m.Get("color", model.SourceURL1))
	assert.Equal(t, "Blue", BestAvailable(got, nil)["color"])
}

func TestApply(t *testing.T) {
	m := colorMatrix()

	_, final, err := Apply(m, nil, Action{Policy: "best"})
	require.NoError(t, err)
	assert.Equal(t, "Black", final["color"])

	_, final, err = Apply(m, final, Action{Policy: "source", Source: "url3"})
	require.NoError(t, err)
	assert.Equal(t, "White", final["color"])

	_, final, err = Apply(m, final, Action{Policy: "manual", Attribute: "model", Value: "X2"})
	require.NoError(t, err)
	assert.Equal(t, "X2", final["model"])

	m2, final2, err := Apply(m, final, Action{Policy: "manual", Attribute: "model", Source: "pdf", Value: "X3"})
	require.NoError(t, err)
	assert.Equal(t, "X3", m2.Get("model", model.SourceDocument))
	assert.Equal(t, final, final2)

	_, final, err = Apply(m, final, Action{Policy: "clear"})
	require.NoError(t, err)
	assert.Empty(t, final)

	_, _, err = Apply(m, nil, Action{Policy: "source", Source: "url9"})
	assert.Error(t, err)
	_, _, err = Apply(m, nil, Action{Policy: "manual", Attribute: "nope"})
	assert.Error(t, err)
	_, _, err = Apply(m, nil, Action{Policy: "vote"})
	assert.Error(t, err)
}
