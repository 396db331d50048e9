package event

import (
	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
)

// Error is the sentinel error type for event codec failures.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNoTemplate is returned when no template is registered for a
	// packet's type (§4.G "on the far side NAKs the format").
	ErrNoTemplate Error = "event: no template registered for packet type"
)

// Decode parses payload according to tmpl, mirroring evParseEventPacket:
// each field definition pulls the next value off the wire with the
// width the template specifies and writes it into the corresponding
// record slot, setting that field's populated bit (§4.E).
func Decode(payload []byte, tmpl *Template) (*Record, error) {
	if tmpl == nil {
		return nil, ErrNoTemplate
	}
	r := New()
	rd := bin.NewReader(payload)

	for _, fld := range tmpl.Fields {
		switch fld.ID {
		case FieldStatusCode:
			r.StatusCode = uint16(rd.Uint(fld.Length))
		case FieldTimestamp:
			ndx := limitIndex(fld.Index, numTimestamps)
			r.Timestamp[ndx] = int64(rd.Uint(fld.Length))
		case FieldIndex:
			r.Index = rd.Uint(fld.Length)
		case FieldGPSPoint:
			ndx := limitIndex(fld.Index, numGPSPoints)
			r.GPSPoint[ndx] = rd.GPS(fld.Length)
		case FieldGPSAge:
			r.GPSAge = rd.Uint(fld.Length)
		case FieldSpeed:
			v := rd.Uint(fld.Length)
			r.SpeedKPH = scaleUintTenth(v, fld.HiRes)
		case FieldHeading:
			v := rd.Uint(fld.Length)
			if fld.HiRes {
				r.Heading = float64(v) / 100.0
			} else {
				r.Heading = float64(v) * 360.0 / 255.0
			}
		case FieldAltitude:
			v := rd.Int(fld.Length)
			r.AltitudeM = scaleIntTenth(v, fld.HiRes)
		case FieldDistance:
			v := rd.Uint(fld.Length)
			r.DistanceKM = scaleUintTenth(v, fld.HiRes)
		case FieldOdometer:
			v := rd.Uint(fld.Length)
			r.OdometerKM = scaleUintTenth(v, fld.HiRes)
		case FieldSequence:
			r.SeqLen = fld.Length
			r.Sequence = rd.Uint(fld.Length)
		case FieldGeofenceID:
			ndx := limitIndex(fld.Index, numGeofenceIDs)
			r.GeofenceID[ndx] = rd.Uint(fld.Length)
			r.GeofenceIDMask |= 1 << ndx
		case FieldTopSpeed:
			v := rd.Uint(fld.Length)
			r.TopSpeedKPH = scaleUintTenth(v, fld.HiRes)
		case FieldString:
			ndx := limitIndex(fld.Index, numStrings)
			r.String[ndx] = rd.String(fld.Length)
			r.StringMask |= 1 << ndx
		case FieldStringPad:
			ndx := limitIndex(fld.Index, numStrings)
			r.String[ndx] = rd.PaddedString(fld.Length)
			r.StringMask |= 1 << ndx
		case FieldEntity:
			ndx := limitIndex(fld.Index, numEntities)
			r.Entity[ndx] = rd.String(fld.Length)
			r.EntityMask |= 1 << ndx
		case FieldEntityPad:
			ndx := limitIndex(fld.Index, numEntities)
			r.Entity[ndx] = rd.PaddedString(fld.Length)
			r.EntityMask |= 1 << ndx
		case FieldBinary:
			r.Binary = rd.Bytes(fld.Length)
		case FieldInputID:
			r.InputID = rd.Uint(fld.Length)
		case FieldInputState:
			r.InputState = rd.Uint(fld.Length)
		case FieldOutputID:
			r.OutputID = rd.Uint(fld.Length)
		case FieldOutputState:
			r.OutputState = rd.Uint(fld.Length)
		case FieldElapsedTime:
			ndx := limitIndex(fld.Index, numElapsed)
			r.ElapsedTimeSec[ndx] = rd.Uint(fld.Length)
		case FieldCounter:
			ndx := limitIndex(fld.Index, numCounters)
			r.Counter[ndx] = rd.Uint(fld.Length)
		case FieldSensor32Low:
			ndx := limitIndex(fld.Index, numSensors)
			r.Sensor32Low[ndx] = rd.Uint(fld.Length)
		case FieldSensor32High:
			ndx := limitIndex(fld.Index, numSensors)
			r.Sensor32High[ndx] = rd.Uint(fld.Length)
		case FieldSensor32Avg:
			ndx := limitIndex(fld.Index, numSensors)
			r.Sensor32Avg[ndx] = rd.Uint(fld.Length)
		case FieldTempLow:
			ndx := limitIndex(fld.Index, numTemps)
			v := rd.Int(fld.Length)
			r.TempLow[ndx] = scaleIntTenth(v, fld.HiRes)
			r.TempLowMask |= 1 << ndx
		case FieldTempHigh:
			ndx := limitIndex(fld.Index, numTemps)
			v := rd.Int(fld.Length)
			r.TempHigh[ndx] = scaleIntTenth(v, fld.HiRes)
			r.TempHighMask |= 1 << ndx
		case FieldTempAvg:
			ndx := limitIndex(fld.Index, numTemps)
			v := rd.Int(fld.Length)
			r.TempAvg[ndx] = scaleIntTenth(v, fld.HiRes)
			r.TempAvgMask |= 1 << ndx
		case FieldGPSDgpsUpdate:
			r.GPSDgpsUpdate = rd.Uint(fld.Length)
		case FieldGPSHorzAccuracy:
			v := rd.Uint(fld.Length)
			r.GPSHorzAccuracy = scaleUintTenth(v, fld.HiRes)
		case FieldGPSVertAccuracy:
			v := rd.Uint(fld.Length)
			r.GPSVertAccuracy = scaleUintTenth(v, fld.HiRes)
		case FieldGPSSatellites:
			r.GPSSatellites = rd.Uint(fld.Length)
		case FieldGPSMagVariation:
			v := rd.Int(fld.Length)
			r.GPSMagVariation = float64(v) / 100.0
		case FieldGPSQuality:
			r.GPSQuality = rd.Uint(fld.Length)
		case FieldGPSType:
			r.GPSType = rd.Uint(fld.Length)
		case FieldGPSGeoidHeight:
			v := rd.Int(fld.Length)
			r.GPSGeoidHeight = scaleIntTenth(v, fld.HiRes)
		case FieldGPSPDOP:
			r.GPSPDOP = float64(rd.Uint(fld.Length)) / 10.0
		case FieldGPSHDOP:
			r.GPSHDOP = float64(rd.Uint(fld.Length)) / 10.0
		case FieldGPSVDOP:
			r.GPSVDOP = float64(rd.Uint(fld.Length)) / 10.0
		case FieldOBCValue:
			ndx := limitIndex(fld.Index, numOBCValues)
			decodeOBCValue(rd, fld.Length, &r.OBCValue[ndx])
		case FieldOBCGeneric:
			ndx := limitIndex(fld.Index, numSensors)
			r.OBCGeneric[ndx] = rd.Uint(fld.Length)
		case FieldOBCJ1708Fault:
			ndx := limitIndex(fld.Index, numSensors)
			r.OBCJ1708Fault[ndx] = rd.Uint(fld.Length)
		case FieldOBCDistance:
			v := rd.Uint(fld.Length)
			r.OBCDistanceKM = scaleUintTenth(v, fld.HiRes)
		case FieldOBCEngineHours:
			r.OBCEngineHours = float64(rd.Uint(fld.Length)) / 10.0
		case FieldOBCEngineRPM:
			r.OBCEngineRPM = rd.Uint(fld.Length)
		case FieldOBCCoolantTemp:
			v := rd.Int(fld.Length)
			r.OBCCoolantTemp = scaleIntTenth(v, fld.HiRes)
		case FieldOBCCoolantLevel:
			v := rd.Uint(fld.Length)
			r.OBCCoolantLevel = scaleLevel(v, fld.HiRes)
		case FieldOBCOilLevel:
			v := rd.Uint(fld.Length)
			r.OBCOilLevel = scaleLevel(v, fld.HiRes)
		case FieldOBCOilPressure:
			v := rd.Uint(fld.Length)
			r.OBCOilPressure = scaleUintTenth(v, fld.HiRes)
		case FieldOBCFuelLevel:
			v := rd.Uint(fld.Length)
			r.OBCFuelLevel = scaleLevel(v, fld.HiRes)
		case FieldOBCFuelEconomy:
			v := float64(rd.Uint(fld.Length)) / 10.0
			r.OBCFuelEconomy = v
			r.OBCAvgFuelEcon = v
		case FieldOBCFuelUsed:
			v := rd.Uint(fld.Length)
			r.OBCFuelUsed = scaleUintTenth(v, fld.HiRes)
		default:
			rd.Skip(fld.Length)
			continue
		}
		r.Mask.Set(fld.ID)
	}

	return r, nil
}

func decodeOBCValue(rd *bin.Reader, length int, v *OBCValue) {
	if length < 4 {
		rd.Skip(length)
		return
	}
	v.MID = uint16(rd.Uint(2))
	v.PID = uint16(rd.Uint(2))
	dataLen := length - 4
	if dataLen > obcDataLen {
		dataLen = obcDataLen
	}
	v.Data = rd.Bytes(dataLen)
	if remaining := length - 4 - dataLen; remaining > 0 {
		rd.Skip(remaining)
	}
}

func scaleUintTenth(v uint32, hiRes bool) float64 {
	if hiRes {
		return float64(v) / 10.0
	}
	return float64(v)
}

func scaleIntTenth(v int32, hiRes bool) float64 {
	if hiRes {
		return float64(v) / 10.0
	}
	return float64(v)
}

// scaleLevel applies the coolant/oil/fuel level resolution rule: percent
// divided by 100 (low-res) or 1000 (high-res), per §4.E's unit table.
func scaleLevel(v uint32, hiRes bool) float64 {
	if hiRes {
		return float64(v) / 1000.0
	}
	return float64(v) / 100.0
}
