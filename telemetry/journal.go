package telemetry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/planalign/types"
)

// Journal frame size constants.
const (
	// MaxFrameSize is the maximum journal frame size (16 MiB), including
	// the length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4
)

// JournalName is the telemetry journal file name within a run directory.
const JournalName = "telemetry.bin"

// ErrFrameTooLarge is returned for frames exceeding MaxPayloadSize.
var ErrFrameTooLarge = errors.New("journal frame exceeds maximum size")

// JournalWriter appends snapshots to a run's telemetry journal as
// length-prefixed msgpack frames. The journal is archived with the run's
// artifacts and allows replaying a run's telemetry after the fact.
type JournalWriter struct {
	f *os.File
	w *bufio.Writer
}

// OpenJournal creates (or truncates) the journal at path.
func OpenJournal(path string) (*JournalWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &JournalWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Append encodes the snapshot and writes one frame.
func (j *JournalWriter) Append(snapshot *types.TelemetrySnapshot) error {
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := j.w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err = j.w.Write(payload)
	return err
}

// Close flushes and closes the journal file.
func (j *JournalWriter) Close() error {
	if err := j.w.Flush(); err != nil {
		_ = j.f.Close()
		return err
	}
	return j.f.Close()
}

// JournalReader decodes snapshots from a telemetry journal stream.
type JournalReader struct {
	r *bufio.Reader
}

// NewJournalReader wraps a journal stream.
func NewJournalReader(r io.Reader) *JournalReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &JournalReader{r: br}
}

// Next reads one snapshot. Returns io.EOF at a clean end of stream; a
// truncated frame returns io.ErrUnexpectedEOF.
func (j *JournalReader) Next() (*types.TelemetrySnapshot, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(j.r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(j.r, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}

	var snapshot types.TelemetrySnapshot
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// ReadJournal replays an entire journal file.
func ReadJournal(path string) ([]*types.TelemetrySnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := NewJournalReader(f)
	var snapshots []*types.TelemetrySnapshot
	for {
		snapshot, err := reader.Next()
		if err == io.EOF {
			return snapshots, nil
		}
		if err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, snapshot)
	}
}
