package models

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Fixed account layouts. String fields carry a 4-byte length prefix and are
// zero-padded to their reserved budget.
const (
	discriminatorLen = 8

	StationEncodedSize = discriminatorLen + common.AddressLength +
		4 + MaxStationNameLen + 4 + MaxStationDescriptionLen +
		8 + 8 + 8 + 1 + 8

	RecordEncodedSize = discriminatorLen + 3*common.AddressLength +
		8 + 1 + 8 + 8 + 8
)

var (
	stationDiscriminator = accountDiscriminator("RecyclingStation")
	recordDiscriminator  = accountDiscriminator("RecycleRecord")
)

func accountDiscriminator(name string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}

type fixedWriter struct {
	buf []byte
	off int
}

func (w *fixedWriter) bytes(b []byte) {
	copy(w.buf[w.off:], b)
	w.off += len(b)
}

func (w *fixedWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *fixedWriter) paddedString(s string, budget int) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], uint32(len(s)))
	w.off += 4
	copy(w.buf[w.off:], s)
	w.off += budget
}

type fixedReader struct {
	buf []byte
	off int
}

func (r *fixedReader) next(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *fixedReader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.next(8))
}

func (r *fixedReader) paddedString(budget int) (string, error) {
	n := int(binary.LittleEndian.Uint32(r.next(4)))
	field := r.next(budget)
	if n > budget {
		return "", fmt.Errorf("string length %d exceeds budget %d", n, budget)
	}
	return string(field[:n]), nil
}

// EncodeStation writes the station into its fixed-size layout
func EncodeStation(s *Station) ([]byte, error) {
	if len(s.Name) > MaxStationNameLen {
		return nil, fmt.Errorf("station name is %d bytes, budget is %d", len(s.Name), MaxStationNameLen)
	}
	if len(s.Description) > MaxStationDescriptionLen {
		return nil, fmt.Errorf("station description is %d bytes, budget is %d", len(s.Description), MaxStationDescriptionLen)
	}

	w := &fixedWriter{buf: make([]byte, StationEncodedSize)}
	w.bytes(stationDiscriminator[:])
	w.bytes(s.Owner.Bytes())
	w.paddedString(s.Name, MaxStationNameLen)
	w.paddedString(s.Description, MaxStationDescriptionLen)
	w.u64(math.Float64bits(s.Latitude))
	w.u64(math.Float64bits(s.Longitude))
	w.u64(s.RecycledCount)
	if s.IsActive {
		w.buf[w.off] = 1
	}
	w.off++
	w.u64(uint64(s.CreatedAt))

	return w.buf, nil
}

// DecodeStation reads a station from its fixed-size layout. The station ID is
// the storage key and is not part of the layout.
func DecodeStation(id common.Address, data []byte) (*Station, error) {
	if len(data) != StationEncodedSize {
		return nil, fmt.Errorf("station layout is %d bytes, want %d", len(data), StationEncodedSize)
	}
	r := &fixedReader{buf: data}
	if [discriminatorLen]byte(r.next(discriminatorLen)) != stationDiscriminator {
		return nil, fmt.Errorf("not a station account")
	}

	s := &Station{ID: id}
	s.Owner = common.BytesToAddress(r.next(common.AddressLength))

	var err error
	if s.Name, err = r.paddedString(MaxStationNameLen); err != nil {
		return nil, err
	}
	if s.Description, err = r.paddedString(MaxStationDescriptionLen); err != nil {
		return nil, err
	}
	s.Latitude = math.Float64frombits(r.u64())
	s.Longitude = math.Float64frombits(r.u64())
	s.RecycledCount = r.u64()
	s.IsActive = r.next(1)[0] == 1
	s.CreatedAt = int64(r.u64())

	return s, nil
}

// EncodeRecord writes the record into its fixed-size layout
func EncodeRecord(rec *RecycleRecord) []byte {
	w := &fixedWriter{buf: make([]byte, RecordEncodedSize)}
	w.bytes(recordDiscriminator[:])
	w.bytes(rec.User.Bytes())
	w.bytes(rec.Station.Bytes())
	w.bytes(rec.TokenType.Bytes())
	w.u64(rec.Amount)
	w.buf[w.off] = rec.Severity
	w.off++
	w.u64(rec.Reward)
	w.u64(rec.ExperiencePoints)
	w.u64(uint64(rec.Timestamp))
	return w.buf
}

// DecodeRecord reads a record from its fixed-size layout
func DecodeRecord(id string, data []byte) (*RecycleRecord, error) {
	if len(data) != RecordEncodedSize {
		return nil, fmt.Errorf("record layout is %d bytes, want %d", len(data), RecordEncodedSize)
	}
	r := &fixedReader{buf: data}
	if [discriminatorLen]byte(r.next(discriminatorLen)) != recordDiscriminator {
		return nil, fmt.Errorf("not a recycle record account")
	}

	rec := &RecycleRecord{ID: id}
	rec.User = common.BytesToAddress(r.next(common.AddressLength))
	rec.Station = common.BytesToAddress(r.next(common.AddressLength))
	rec.TokenType = common.BytesToAddress(r.next(common.AddressLength))
	rec.Amount = r.u64()
	rec.Severity = r.next(1)[0]
	rec.Reward = r.u64()
	rec.ExperiencePoints = r.u64()
	rec.Timestamp = int64(r.u64())

	return rec, nil
}
