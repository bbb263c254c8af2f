package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Agenda",
		Headers: []string{"Start", "Invitee", "Status"},
		Rows: [][]string{
			{"2024-06-03 10:00", "Ada, Countess", "confirmed"},
			{"2024-06-03 11:00", "Grace"},
		},
	}
}

func TestCSVExporterPadsAndQuotes(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Start", "Invitee", "Status"}, records[0])
	assert.Equal(t, "Ada, Countess", records[1][1])
	assert.Equal(t, "", records[2][2])
}

func TestExportersRejectMalformedDatasets(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)

	_, err = NewPDFExporter().Render(Dataset{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
}

func TestPDFExporterRenders(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}
