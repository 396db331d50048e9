// Package event implements the OpenDMTP event-record codec (§4.E): a
// heterogeneous, sparsely-populated record encoded/decoded through a
// self-describing field-template registry.
package event

import "github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"

// Undefined sentinel values for numeric fields that were never
// populated (§3 "Event record": "Numeric fields default to sentinel
// 'undefined' values").
const (
	UndefinedSpeed         = -1.0
	UndefinedHeading       = -1.0
	UndefinedAltitude      = -999999.0
	UndefinedDistance      = -1.0
	UndefinedTemperature   = -9999.0
	UndefinedAccuracy      = -1.0
	UndefinedMagVariation  = -9999.0
	UndefinedGeoidHeight   = -9999.0
	UndefinedDOP           = -1.0
)

const (
	numTimestamps  = 2
	numGPSPoints   = 2
	numGeofenceIDs = 5
	numStrings     = 2
	numEntities    = 2
	numElapsed     = 4
	numCounters    = 4
	numSensors     = 8
	numTemps       = 8
	numOBCValues   = 2
	obcDataLen     = 8
)

// OBCValue is one On-Board-Computer sub-record: a (MID, PID) pair plus
// its raw payload bytes.
type OBCValue struct {
	MID  uint16
	PID  uint16
	Data []byte
}

// Record is the heterogeneous event structure populated by the field
// template registry (§3 "Event record"). A FieldID's bit in Mask
// indicates the field was actually written by the decoder (or
// explicitly set before encoding).
type Record struct {
	Mask FieldMask

	StatusCode uint16
	Timestamp  [numTimestamps]int64
	Index      uint32

	GPSPoint [numGPSPoints]gpsenc.Point
	GPSAge   uint32

	SpeedKPH    float64
	Heading     float64
	AltitudeM   float64
	DistanceKM  float64
	OdometerKM  float64

	Sequence uint32
	SeqLen   int

	GeofenceID     [numGeofenceIDs]uint32
	GeofenceIDMask uint8

	TopSpeedKPH float64

	String     [numStrings]string
	StringMask uint8
	Entity     [numEntities]string
	EntityMask uint8

	Binary []byte

	InputID     uint32
	InputState  uint32
	OutputID    uint32
	OutputState uint32

	ElapsedTimeSec [numElapsed]uint32
	Counter        [numCounters]uint32

	Sensor32Low  [numSensors]uint32
	Sensor32High [numSensors]uint32
	Sensor32Avg  [numSensors]uint32

	TempLow     [numTemps]float64
	TempLowMask uint8
	TempHigh    [numTemps]float64
	TempHighMask uint8
	TempAvg     [numTemps]float64
	TempAvgMask uint8

	GPSDgpsUpdate   uint32
	GPSHorzAccuracy float64
	GPSVertAccuracy float64
	GPSSatellites   uint32
	GPSMagVariation float64
	GPSQuality      uint32
	GPSType         uint32
	GPSGeoidHeight  float64
	GPSPDOP         float64
	GPSHDOP         float64
	GPSVDOP         float64

	OBCValue        [numOBCValues]OBCValue
	OBCGeneric      [numSensors]uint32
	OBCJ1708Fault   [numSensors]uint32
	OBCDistanceKM   float64
	OBCEngineHours  float64
	OBCEngineRPM    uint32
	OBCCoolantTemp  float64
	OBCCoolantLevel float64
	OBCOilLevel     float64
	OBCOilPressure  float64
	OBCFuelLevel    float64
	OBCFuelEconomy  float64
	OBCAvgFuelEcon  float64
	OBCFuelUsed     float64
}

// New returns a Record with every numeric field at its "undefined"
// sentinel, matching the defaults an empty event is cleared to.
func New() *Record {
	r := &Record{
		SpeedKPH:    UndefinedSpeed,
		Heading:     UndefinedHeading,
		AltitudeM:   UndefinedAltitude,
		DistanceKM:  UndefinedDistance,
		OdometerKM:  UndefinedDistance,
		TopSpeedKPH: UndefinedSpeed,

		GPSHorzAccuracy: UndefinedAccuracy,
		GPSVertAccuracy: UndefinedAccuracy,
		GPSMagVariation: UndefinedMagVariation,
		GPSGeoidHeight:  UndefinedGeoidHeight,
		GPSPDOP:         UndefinedDOP,
		GPSHDOP:         UndefinedDOP,
		GPSVDOP:         UndefinedDOP,
	}
	for i := range r.TempLow {
		r.TempLow[i] = UndefinedTemperature
		r.TempHigh[i] = UndefinedTemperature
		r.TempAvg[i] = UndefinedTemperature
	}
	return r
}

// IsSet reports whether id's bit is set in the record's field mask.
func (r *Record) IsSet(id FieldID) bool {
	return r.Mask.IsSet(id)
}

func limitIndex(n, limit int) int {
	if n >= limit {
		return limit - 1
	}
	if n < 0 {
		return 0
	}
	return n
}
