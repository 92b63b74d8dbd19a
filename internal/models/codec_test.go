package models

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodedSizes(t *testing.T) {
	assert.Equal(t, 369, StationEncodedSize)
	assert.Equal(t, 101, RecordEncodedSize)
}

func TestStationLayout(t *testing.T) {
	station := &Station{
		ID:            common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Owner:         common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Name:          "Central Depot",
		Description:   "Drop-off for abandoned mints",
		Latitude:      40.7128,
		Longitude:     -74.0060,
		RecycledCount: 7,
		IsActive:      true,
		CreatedAt:     1700000000,
	}

	data, err := EncodeStation(station)
	require.NoError(t, err)
	require.Len(t, data, StationEncodedSize)

	decoded, err := DecodeStation(station.ID, data)
	require.NoError(t, err)
	assert.Equal(t, station, decoded)
}

func TestStationLayoutFullBudgets(t *testing.T) {
	station := &Station{
		Name:        strings.Repeat("n", MaxStationNameLen),
		Description: strings.Repeat("d", MaxStationDescriptionLen),
	}

	data, err := EncodeStation(station)
	require.NoError(t, err)
	require.Len(t, data, StationEncodedSize)

	decoded, err := DecodeStation(common.Address{}, data)
	require.NoError(t, err)
	assert.Equal(t, station.Name, decoded.Name)
	assert.Equal(t, station.Description, decoded.Description)
	assert.False(t, decoded.IsActive)
}

func TestStationLayoutRejectsOverBudget(t *testing.T) {
	_, err := EncodeStation(&Station{Name: strings.Repeat("n", MaxStationNameLen+1)})
	assert.Error(t, err)

	_, err = EncodeStation(&Station{Description: strings.Repeat("d", MaxStationDescriptionLen+1)})
	assert.Error(t, err)
}

func TestDecodeStationRejectsBadInput(t *testing.T) {
	data, err := EncodeStation(&Station{Name: "ok"})
	require.NoError(t, err)

	_, err = DecodeStation(common.Address{}, data[:len(data)-1])
	assert.Error(t, err)

	tampered := append([]byte(nil), data...)
	tampered[0] ^= 0xff
	_, err = DecodeStation(common.Address{}, tampered)
	assert.Error(t, err)

	// name length prefix larger than its budget
	corrupt := append([]byte(nil), data...)
	corrupt[discriminatorLen+common.AddressLength] = 0xff
	_, err = DecodeStation(common.Address{}, corrupt)
	assert.Error(t, err)

	// a record is not a station
	_, err = DecodeStation(common.Address{}, append(EncodeRecord(&RecycleRecord{}), make([]byte, StationEncodedSize-RecordEncodedSize)...))
	assert.Error(t, err)
}

func TestRecordLayout(t *testing.T) {
	record := &RecycleRecord{
		ID:               "5f0c8a7e-51f4-4c0b-9d2c-0c2a61f4b1e7",
		User:             common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		Station:          common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		TokenType:        common.HexToAddress("0x00000000000000000000000000000000000000d1"),
		Amount:           5_000_000,
		Severity:         100,
		Reward:           10,
		ExperiencePoints: 100,
		Timestamp:        1700000123,
	}

	data := EncodeRecord(record)
	require.Len(t, data, RecordEncodedSize)

	decoded, err := DecodeRecord(record.ID, data)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)

	_, err = DecodeRecord(record.ID, data[1:])
	assert.Error(t, err)

	tampered := append([]byte(nil), data...)
	tampered[3] ^= 0x01
	_, err = DecodeRecord(record.ID, tampered)
	assert.Error(t, err)
}
