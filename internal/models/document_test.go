package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSetAggregatesRepeats(t *testing.T) {
	d := NewDocument()
	d.Set("safetyreportid", "R-1")
	d.Set("reaction", "Nausea")
	d.Set("reaction", "Rash")
	d.Set("reaction", "Headache")

	assert.Equal(t, "R-1", d.GetString("safetyreportid"))
	list, ok := d.Get("reaction").([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Nausea", "Rash", "Headache"}, list)
	assert.Equal(t, []string{"safetyreportid", "reaction"}, d.Keys())
	assert.Equal(t, 2, d.Len())
}

func TestDocumentMarshalPreservesOrder(t *testing.T) {
	d := NewDocument()
	d.Set("zulu", "1")
	d.Set("alpha", "2")
	d.Set("mike", "3")

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"zulu":"1","alpha":"2","mike":"3"}`, string(out))
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	patient := NewDocument()
	patient.Set("patientinitials", "AB")
	patient.Set("reaction", "Nausea")
	patient.Set("reaction", "Rash")

	d := NewDocument()
	d.Set("safetyreportid", "R-1")
	d.Set("patient", patient)

	out, err := json.Marshal(d)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(out, &back))

	assert.Equal(t, d.Keys(), back.Keys())
	assert.Equal(t, "R-1", back.GetString("safetyreportid"))

	child, ok := back.Get("patient").(*Document)
	require.True(t, ok)
	assert.Equal(t, "AB", child.GetString("patientinitials"))
	assert.Equal(t, []any{"Nausea", "Rash"}, child.Get("reaction"))

	again, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.Equal(t, string(out), string(again))
}

func TestDocumentGetStringOnNonScalar(t *testing.T) {
	d := NewDocument()
	d.Set("nested", NewDocument())
	assert.Equal(t, "", d.GetString("nested"))
	assert.Equal(t, "", d.GetString("absent"))
}
