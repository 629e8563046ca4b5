package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shared-canvas/backend/internal/model"
)

func TestEncodeDecode(t *testing.T) {
	var events []model.BoardEvent
	for i := 0; i < 200; i++ {
		ev := model.NewStrokeEvent(model.StrokeSegment{X1: float64(i), Y1: 1, X2: float64(i + 1), Y2: 2, Color: "#000000", Width: 5})
		ev.SequenceID = uint64(i + 1)
		ev.SourceClientID = "client-a"
		events = append(events, ev)
	}

	data, err := Encode(events)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, got, len(events))
	assert.Equal(t, events[199].SequenceID, got[199].SequenceID)
	assert.Equal(t, events[10].X1, got[10].X1)
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)

	raw, err := Decompress(data)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestCompressShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte(`{"type":"draw","x1":1,"y1":1,"x2":2,"y2":2,"color":"#000000","width":5},`), 500)

	compressed, err := Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data)/4)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not lz4"))
	assert.Error(t, err)
}
