// Package recorder optionally persists a completed CaptureSession's
// decoded per-channel samples and burst metadata to a columnar file for
// offline inspection. It has no bearing on capture correctness and is
// adapted from this product line's existing ParquetWriteAdapter, which
// buffers raw samples and rows them into Parquet the same way.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"

	"github.com/ocupoint/xla/pkg/capture"
)

// ChannelRecord is one row: a single channel's decoded samples from one
// capture, plus that capture's burst metadata (duplicated per channel row
// since Parquet has no cheap session-level side table here).
type ChannelRecord struct {
	SessionID     string `parquet:"session_id"`
	ChannelNumber int32  `parquet:"channel_number"`
	ChannelName   string `parquet:"channel_name"`
	Frequency     int64  `parquet:"frequency"`
	Samples       []byte `parquet:"samples"`
	BurstsJSON    string `parquet:"bursts_json"`
}

// SampleRecorder writes ChannelRecord rows to a fixed path, one file per
// Record call.
type SampleRecorder struct {
	path string
}

// NewSampleRecorder builds a recorder that writes to path.
func NewSampleRecorder(path string) *SampleRecorder {
	return &SampleRecorder{path: path}
}

// Record writes every channel of session as one row, tagged with the
// session's correlation id via Parquet key/value metadata, mirroring the
// teacher's practice of stamping the hardware config JSON onto the file as
// metadata rather than a data column.
func (r *SampleRecorder) Record(session *capture.CaptureSession) error {
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", r.path, err)
	}

	burstsJSON, err := json.Marshal(session.Bursts)
	if err != nil {
		f.Close()
		return fmt.Errorf("recorder: marshal burst metadata: %w", err)
	}

	w := parquet.NewGenericWriter[ChannelRecord](f,
		parquet.KeyValueMetadata("session_id", session.ID.String()),
	)

	rows := make([]ChannelRecord, len(session.CaptureChannels))
	for i, ch := range session.CaptureChannels {
		rows[i] = ChannelRecord{
			SessionID:     session.ID.String(),
			ChannelNumber: int32(ch.Number),
			ChannelName:   ch.Name,
			Frequency:     int64(session.Frequency),
			Samples:       ch.Samples,
			BurstsJSON:    string(burstsJSON),
		}
	}

	if _, err := w.Write(rows); err != nil {
		w.Close()
		f.Close()
		return fmt.Errorf("recorder: write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("recorder: close writer: %w", err)
	}
	return f.Close()
}
