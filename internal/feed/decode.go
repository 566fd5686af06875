package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ohlcchart/internal/model"
)

// Report counts records the boundary could not convert.
type Report struct {
	Records  int `json:"records"`
	Rejected int `json:"rejected"`
}

// DecodeJSON reads a JSON array of records. A record that does not decode
// is rejected on its own; only a malformed array fails the whole input.
func DecodeJSON(r io.Reader) ([]model.Candle, Report, error) {
	var raws []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, Report{}, fmt.Errorf("decode json candles: %w", err)
	}
	b := newBatch(len(raws))
	for _, raw := range raws {
		var rec Record
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		err := dec.Decode(&rec)
		b.add(rec, err)
	}
	return b.out, b.rep, nil
}

// DecodeYAML reads a YAML sequence of records, rejecting bad records one by
// one like DecodeJSON. An empty document yields no candles.
func DecodeYAML(r io.Reader) ([]model.Candle, Report, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []model.Candle{}, Report{}, nil
		}
		return nil, Report{}, fmt.Errorf("decode yaml candles: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return nil, Report{}, fmt.Errorf("decode yaml candles: line %d: expected a sequence of records", root.Line)
	}
	b := newBatch(len(root.Content))
	for _, node := range root.Content {
		var rec Record
		err := node.Decode(&rec)
		b.add(rec, err)
	}
	return b.out, b.rep, nil
}

// LoadFile decodes a candle file, choosing the format by extension
// (.json, .yaml, .yml).
func LoadFile(path string) ([]model.Candle, Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Report{}, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	default:
		return nil, Report{}, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
}

// ParseMessage decodes a single JSON record, e.g. one live stream entry.
func ParseMessage(data []byte) (model.Candle, error) {
	var rec Record
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return model.Candle{}, fmt.Errorf("decode candle message: %w", err)
	}
	return rec.Candle()
}

// batch collects converted candles and counts rejected records.
type batch struct {
	out []model.Candle
	rep Report
}

func newBatch(n int) *batch {
	return &batch{out: make([]model.Candle, 0, n)}
}

// add converts rec unless decodeErr is set; either failure rejects it.
func (b *batch) add(rec Record, decodeErr error) {
	b.rep.Records++
	if decodeErr != nil {
		b.rep.Rejected++
		return
	}
	c, err := rec.Candle()
	if err != nil {
		b.rep.Rejected++
		return
	}
	b.out = append(b.out, c)
}
