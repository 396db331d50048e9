package event

import (
	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
)

// Encode writes one value for every field in tmpl's layout into a
// bin.Writer, taken from r's corresponding slot whether or not that
// slot is set — the inverse of Decode (§4.E "Encode: caller
// identifies a packet type; the registry lookup yields a template;
// each field definition pulls a value from the event record's
// corresponding slot").
func Encode(w *bin.Writer, r *Record, tmpl *Template) error {
	if tmpl == nil {
		return ErrNoTemplate
	}
	for _, fld := range tmpl.Fields {
		if err := encodeField(w, r, fld); err != nil {
			return err
		}
	}
	return nil
}

func encodeField(w *bin.Writer, r *Record, fld FieldDef) error {
	switch fld.ID {
	case FieldStatusCode:
		return w.Uint(fld.Length, uint32(r.StatusCode))
	case FieldTimestamp:
		ndx := limitIndex(fld.Index, numTimestamps)
		return w.Uint(fld.Length, uint32(r.Timestamp[ndx]))
	case FieldIndex:
		return w.Uint(fld.Length, r.Index)
	case FieldGPSPoint:
		ndx := limitIndex(fld.Index, numGPSPoints)
		return w.GPS(fld.Length, r.GPSPoint[ndx])
	case FieldGPSAge:
		return w.Uint(fld.Length, r.GPSAge)
	case FieldSpeed:
		return w.Uint(fld.Length, unscaleUintTenth(r.SpeedKPH, fld.HiRes))
	case FieldHeading:
		if fld.HiRes {
			return w.Uint(fld.Length, uint32(r.Heading*100.0))
		}
		return w.Uint(fld.Length, uint32(r.Heading*255.0/360.0))
	case FieldAltitude:
		return w.Int(fld.Length, unscaleIntTenth(r.AltitudeM, fld.HiRes))
	case FieldDistance:
		return w.Uint(fld.Length, unscaleUintTenth(r.DistanceKM, fld.HiRes))
	case FieldOdometer:
		return w.Uint(fld.Length, unscaleUintTenth(r.OdometerKM, fld.HiRes))
	case FieldSequence:
		return w.Hex(fld.Length, r.Sequence)
	case FieldGeofenceID:
		ndx := limitIndex(fld.Index, numGeofenceIDs)
		return w.Hex(fld.Length, r.GeofenceID[ndx])
	case FieldTopSpeed:
		return w.Uint(fld.Length, unscaleUintTenth(r.TopSpeedKPH, fld.HiRes))
	case FieldString:
		ndx := limitIndex(fld.Index, numStrings)
		return w.String(fld.Length, r.String[ndx])
	case FieldStringPad:
		ndx := limitIndex(fld.Index, numStrings)
		return w.PaddedString(fld.Length, r.String[ndx])
	case FieldEntity:
		ndx := limitIndex(fld.Index, numEntities)
		return w.String(fld.Length, r.Entity[ndx])
	case FieldEntityPad:
		ndx := limitIndex(fld.Index, numEntities)
		return w.PaddedString(fld.Length, r.Entity[ndx])
	case FieldBinary:
		return w.BytesField(fld.Length, r.Binary)
	case FieldInputID:
		return w.Hex(fld.Length, r.InputID)
	case FieldInputState:
		return w.Hex(fld.Length, r.InputState)
	case FieldOutputID:
		return w.Hex(fld.Length, r.OutputID)
	case FieldOutputState:
		return w.Hex(fld.Length, r.OutputState)
	case FieldElapsedTime:
		ndx := limitIndex(fld.Index, numElapsed)
		return w.Uint(fld.Length, r.ElapsedTimeSec[ndx])
	case FieldCounter:
		ndx := limitIndex(fld.Index, numCounters)
		return w.Uint(fld.Length, r.Counter[ndx])
	case FieldSensor32Low:
		ndx := limitIndex(fld.Index, numSensors)
		return w.Uint(fld.Length, r.Sensor32Low[ndx])
	case FieldSensor32High:
		ndx := limitIndex(fld.Index, numSensors)
		return w.Uint(fld.Length, r.Sensor32High[ndx])
	case FieldSensor32Avg:
		ndx := limitIndex(fld.Index, numSensors)
		return w.Uint(fld.Length, r.Sensor32Avg[ndx])
	case FieldTempLow:
		ndx := limitIndex(fld.Index, numTemps)
		return w.Int(fld.Length, unscaleIntTenth(r.TempLow[ndx], fld.HiRes))
	case FieldTempHigh:
		ndx := limitIndex(fld.Index, numTemps)
		return w.Int(fld.Length, unscaleIntTenth(r.TempHigh[ndx], fld.HiRes))
	case FieldTempAvg:
		ndx := limitIndex(fld.Index, numTemps)
		return w.Int(fld.Length, unscaleIntTenth(r.TempAvg[ndx], fld.HiRes))
	case FieldGPSDgpsUpdate:
		return w.Uint(fld.Length, r.GPSDgpsUpdate)
	case FieldGPSHorzAccuracy:
		return w.Uint(fld.Length, unscaleUintTenth(r.GPSHorzAccuracy, fld.HiRes))
	case FieldGPSVertAccuracy:
		return w.Uint(fld.Length, unscaleUintTenth(r.GPSVertAccuracy, fld.HiRes))
	case FieldGPSSatellites:
		return w.Uint(fld.Length, r.GPSSatellites)
	case FieldGPSMagVariation:
		return w.Int(fld.Length, int32(r.GPSMagVariation*100.0))
	case FieldGPSQuality:
		return w.Uint(fld.Length, r.GPSQuality)
	case FieldGPSType:
		return w.Uint(fld.Length, r.GPSType)
	case FieldGPSGeoidHeight:
		return w.Int(fld.Length, unscaleIntTenth(r.GPSGeoidHeight, fld.HiRes))
	case FieldGPSPDOP:
		return w.Uint(fld.Length, uint32(r.GPSPDOP*10.0))
	case FieldGPSHDOP:
		return w.Uint(fld.Length, uint32(r.GPSHDOP*10.0))
	case FieldGPSVDOP:
		return w.Uint(fld.Length, uint32(r.GPSVDOP*10.0))
	case FieldOBCValue:
		ndx := limitIndex(fld.Index, numOBCValues)
		return encodeOBCValue(w, fld.Length, r.OBCValue[ndx])
	case FieldOBCGeneric:
		ndx := limitIndex(fld.Index, numSensors)
		return w.Uint(fld.Length, r.OBCGeneric[ndx])
	case FieldOBCJ1708Fault:
		ndx := limitIndex(fld.Index, numSensors)
		return w.Hex(fld.Length, r.OBCJ1708Fault[ndx])
	case FieldOBCDistance:
		return w.Uint(fld.Length, unscaleUintTenth(r.OBCDistanceKM, fld.HiRes))
	case FieldOBCEngineHours:
		return w.Uint(fld.Length, uint32(r.OBCEngineHours*10.0))
	case FieldOBCEngineRPM:
		return w.Uint(fld.Length, r.OBCEngineRPM)
	case FieldOBCCoolantTemp:
		return w.Int(fld.Length, unscaleIntTenth(r.OBCCoolantTemp, fld.HiRes))
	case FieldOBCCoolantLevel:
		return w.Uint(fld.Length, unscaleLevel(r.OBCCoolantLevel, fld.HiRes))
	case FieldOBCOilLevel:
		return w.Uint(fld.Length, unscaleLevel(r.OBCOilLevel, fld.HiRes))
	case FieldOBCOilPressure:
		return w.Uint(fld.Length, unscaleUintTenth(r.OBCOilPressure, fld.HiRes))
	case FieldOBCFuelLevel:
		return w.Uint(fld.Length, unscaleLevel(r.OBCFuelLevel, fld.HiRes))
	case FieldOBCFuelEconomy:
		return w.Uint(fld.Length, uint32(r.OBCFuelEconomy*10.0))
	case FieldOBCFuelUsed:
		return w.Uint(fld.Length, unscaleUintTenth(r.OBCFuelUsed, fld.HiRes))
	default:
		return w.Zero(fld.Length)
	}
}

func encodeOBCValue(w *bin.Writer, length int, v OBCValue) error {
	if length < 4 {
		return w.Zero(length)
	}
	if err := w.Uint(2, uint32(v.MID)); err != nil {
		return err
	}
	if err := w.Uint(2, uint32(v.PID)); err != nil {
		return err
	}
	dataLen := length - 4
	if err := w.BytesField(dataLen, v.Data); err != nil {
		return err
	}
	return nil
}

func unscaleUintTenth(v float64, hiRes bool) uint32 {
	if hiRes {
		return uint32(v * 10.0)
	}
	return uint32(v)
}

func unscaleIntTenth(v float64, hiRes bool) int32 {
	if hiRes {
		return int32(v * 10.0)
	}
	return int32(v)
}

func unscaleLevel(v float64, hiRes bool) uint32 {
	if hiRes {
		return uint32(v * 1000.0)
	}
	return uint32(v * 100.0)
}
