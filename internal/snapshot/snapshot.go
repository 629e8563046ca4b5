// Package snapshot encodes event snapshots for transfer, optionally
// compressed with LZ4 frames.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/shared-canvas/backend/internal/model"
)

// ContentTypeLZ4 is served for compressed snapshots.
const ContentTypeLZ4 = "application/x-lz4"

// Compress wraps data in an LZ4 frame.
func Compress(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close lz4 writer: %w", err)
	}

	return compressed.Bytes(), nil
}

// Decompress reads a whole LZ4 frame.
func Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	return out, nil
}

// Encode marshals events as a JSON array and compresses it.
func Encode(events []model.BoardEvent) ([]byte, error) {
	if events == nil {
		events = []model.BoardEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return Compress(data)
}

// Decode reverses Encode.
func Decode(data []byte) ([]model.BoardEvent, error) {
	raw, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	var events []model.BoardEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return events, nil
}
