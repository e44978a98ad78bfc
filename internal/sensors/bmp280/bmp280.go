package bmp280

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"gaul-gnss/internal/i2c"
)

var sleep = time.Sleep

// BMP280 barometer driver: chip ID check, compensated temperature and
// pressure, and altitude relative to a measured ground reference.

const (
	addrDefault = 0x77

	regID        = 0xD0
	chipIDBMP280 = 0x58

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 24

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regPressMsb = 0xF7
)

const (
	// SeaLevelPa is used when no plausible ground reference could be measured.
	SeaLevelPa = 101325.0

	minRefPa = 90000.0
	maxRefPa = 110000.0
)

// Mode selects oversampling and filtering.
type Mode int

const (
	// ModeNormal: temperature x2, pressure x16, IIR filter 16, standby 0.5ms.
	ModeNormal Mode = iota
	// ModeLowPower: temperature x1, pressure x4, filter off, standby 62.5ms.
	ModeLowPower
)

func (m Mode) registers() (ctrlMeas, config byte) {
	switch m {
	case ModeLowPower:
		return byte(0x01<<5) | byte(0x03<<2) | 0x03, byte(0x01<<5) | byte(0x00<<2)
	default:
		return byte(0x02<<5) | byte(0x05<<2) | 0x03, byte(0x00<<5) | byte(0x04<<2)
	}
}

type Device struct {
	dev regIO

	// Calibration.
	digT1 uint16
	digT2 int16
	digT3 int16
	digP1 uint16
	digP2 int16
	digP3 int16
	digP4 int16
	digP5 int16
	digP6 int16
	digP7 int16
	digP8 int16
	digP9 int16

	tFine int32

	refPa float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, mode Mode) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	return newWithIO(dev, mode)
}

func newWithIO(dev regIO, mode Mode) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	d := &Device{dev: dev, refPa: SeaLevelPa}

	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return nil, fmt.Errorf("bmp280: id read failed: %w", err)
	}
	if id != chipIDBMP280 {
		return nil, fmt.Errorf("bmp280: chip id=0x%02X want 0x%02X", id, chipIDBMP280)
	}

	// NVM calibration is copied after reset; reading too early yields zeros.
	if err := d.dev.WriteReg(regReset, resetCmd); err != nil {
		return nil, fmt.Errorf("bmp280: reset failed: %w", err)
	}
	sleep(5 * time.Millisecond)

	var calibErr error
	for i := 0; i < 3; i++ {
		calibErr = d.readCalibration()
		if calibErr != nil {
			sleep(5 * time.Millisecond)
			continue
		}
		if d.digT1 != 0 && d.digP1 != 0 {
			calibErr = nil
			break
		}
		calibErr = fmt.Errorf("bmp280: calibration invalid (digT1=%d digP1=%d)", d.digT1, d.digP1)
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return nil, calibErr
	}

	ctrl, config := mode.registers()
	// Config is only writable in sleep mode, so it goes before ctrl_meas.
	if err := d.dev.WriteReg(regConfig, config); err != nil {
		return nil, fmt.Errorf("bmp280: config write failed: %w", err)
	}
	if err := d.dev.WriteReg(regCtrlMeas, ctrl); err != nil {
		return nil, fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
	}

	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalib00, buf); err != nil {
		return fmt.Errorf("bmp280: read calib failed: %w", err)
	}
	d.digT1 = binary.LittleEndian.Uint16(buf[0:2])
	d.digT2 = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.digT3 = int16(binary.LittleEndian.Uint16(buf[4:6]))
	d.digP1 = binary.LittleEndian.Uint16(buf[6:8])
	d.digP2 = int16(binary.LittleEndian.Uint16(buf[8:10]))
	d.digP3 = int16(binary.LittleEndian.Uint16(buf[10:12]))
	d.digP4 = int16(binary.LittleEndian.Uint16(buf[12:14]))
	d.digP5 = int16(binary.LittleEndian.Uint16(buf[14:16]))
	d.digP6 = int16(binary.LittleEndian.Uint16(buf[16:18]))
	d.digP7 = int16(binary.LittleEndian.Uint16(buf[18:20]))
	d.digP8 = int16(binary.LittleEndian.Uint16(buf[20:22]))
	d.digP9 = int16(binary.LittleEndian.Uint16(buf[22:24]))
	return nil
}

// Read returns compensated temperature (C) and pressure (Pa).
func (d *Device) Read() (tempC float64, pressPa float64, err error) {
	buf := make([]byte, 6)
	if err := d.dev.ReadReg(regPressMsb, buf); err != nil {
		return 0, 0, fmt.Errorf("bmp280: read data failed: %w", err)
	}

	adcP := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	adcT := int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4

	tFine, t := d.compensateTemp(adcT)
	d.tFine = tFine
	p := d.compensatePress(adcP)

	return t, p, nil
}

// MeasureReference averages samples pressure readings taken interval apart
// and stores the result as the ground reference. An out-of-range average or
// a read failure leaves the reference at SeaLevelPa; the error is returned
// so the caller can log it.
func (d *Device) MeasureReference(samples int, interval time.Duration) (float64, error) {
	d.refPa = SeaLevelPa
	if samples <= 0 {
		return d.refPa, fmt.Errorf("bmp280: reference samples=%d must be > 0", samples)
	}
	var sum float64
	for i := 0; i < samples; i++ {
		_, p, err := d.Read()
		if err != nil {
			return d.refPa, err
		}
		sum += p
		sleep(interval)
	}
	avg := sum / float64(samples)
	if avg < minRefPa || avg > maxRefPa {
		return d.refPa, fmt.Errorf("bmp280: reference pressure %.0f Pa outside [%.0f, %.0f]", avg, minRefPa, maxRefPa)
	}
	d.refPa = avg
	return d.refPa, nil
}

// Reference returns the pressure that Altitude measures from.
func (d *Device) Reference() float64 { return d.refPa }

// SetReference overrides the ground reference, for example to carry it over
// a re-initialisation.
func (d *Device) SetReference(pa float64) {
	if pa > 0 {
		d.refPa = pa
	}
}

// ReadAltitude reads the sensor and returns pressure and altitude above the
// reference.
func (d *Device) ReadAltitude() (pressPa, altM float64, err error) {
	_, p, err := d.Read()
	if err != nil {
		return 0, 0, err
	}
	return p, Altitude(p, d.refPa), nil
}

// Altitude converts a pressure to meters above refPa with the international
// barometric formula.
func Altitude(pressPa, refPa float64) float64 {
	if pressPa <= 0 || refPa <= 0 {
		return 0
	}
	return 44330.0 * (1.0 - math.Pow(pressPa/refPa, 0.1903))
}

func (d *Device) compensateTemp(adcT int32) (tFine int32, tempC float64) {
	var1 := (float64(adcT)/16384.0 - float64(d.digT1)/1024.0) * float64(d.digT2)
	var2 := (float64(adcT)/131072.0 - float64(d.digT1)/8192.0)
	var2 = var2 * var2 * float64(d.digT3)
	tFineF := var1 + var2
	tFine = int32(tFineF)
	tempC = tFineF / 5120.0
	return tFine, tempC
}

func (d *Device) compensatePress(adcP int32) float64 {
	// Datasheet floating point algorithm.
	var1 := float64(d.tFine)/2.0 - 64000.0
	var2 := var1 * var1 * float64(d.digP6) / 32768.0
	var2 = var2 + var1*float64(d.digP5)*2.0
	var2 = var2/4.0 + float64(d.digP4)*65536.0
	var1 = (float64(d.digP3)*var1*var1/524288.0 + float64(d.digP2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(d.digP1)
	if var1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(adcP)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(d.digP9) * p * p / 2147483648.0
	var2 = p * float64(d.digP8) / 32768.0
	p = p + (var1+var2+float64(d.digP7))/16.0
	return p
}
