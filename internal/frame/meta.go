package frame

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/gaby/sparse-stream/internal/errs"
)

// Meta is the JSON payload carried by the first frame of a stream.
// Unknown keys are ignored on decode; only VirtualSize is required.
type Meta struct {
	VirtualSize uint64 `json:"virtual-size"`
	DataSize    uint64 `json:"data-size"`
	Date        string `json:"date"`
	Incremental bool   `json:"incremental"`
}

// metaWire mirrors Meta but makes VirtualSize a pointer so its absence
// is distinguishable from an explicit zero, per spec: virtual-size is
// the only field whose absence is fatal.
type metaWire struct {
	VirtualSize *uint64 `json:"virtual-size"`
	DataSize    uint64  `json:"data-size"`
	Date        string  `json:"date"`
	Incremental bool    `json:"incremental"`
}

// EncodeMeta serializes m to compact JSON, normalizing the Date field
// to NFC first so the emitted bytes never depend on the normalization
// form the system clock or imageio service happened to produce.
func EncodeMeta(m Meta) ([]byte, error) {
	m.Date = norm.NFC.String(m.Date)
	return json.Marshal(m)
}

// DecodeMeta parses the JSON body of a meta frame. Unknown keys are
// ignored by virtue of decoding into a fixed struct; a missing
// virtual-size is errs.ErrMalformedFrame.
func DecodeMeta(body []byte) (Meta, error) {
	var w metaWire
	if err := json.Unmarshal(body, &w); err != nil {
		return Meta{}, fmt.Errorf("%w: meta JSON: %v", errs.ErrMalformedFrame, err)
	}
	if w.VirtualSize == nil {
		return Meta{}, fmt.Errorf("%w: meta missing virtual-size", errs.ErrMalformedFrame)
	}
	return Meta{
		VirtualSize: *w.VirtualSize,
		DataSize:    w.DataSize,
		Date:        norm.NFC.String(w.Date),
		Incremental: w.Incremental,
	}, nil
}
