package bmp280

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeI2C struct {
	// Simple register model.
	regs map[byte][]byte

	// Calibration read behavior.
	calibReads int
	calibSeq   [][]byte

	writes []writeOp
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	b, ok := f.regs[reg]
	if !ok || len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if reg == regCalib00 {
		f.calibReads++
		idx := f.calibReads - 1
		if idx < len(f.calibSeq) {
			copy(dst, f.calibSeq[idx])
			return nil
		}
		// Default to zeros.
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}

	b, ok := f.regs[reg]
	if !ok {
		return errors.New("no reg")
	}
	copy(dst, b)
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func TestNew_RetriesCalibrationAfterReset(t *testing.T) {
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })

	calibZero := make([]byte, calibLen)
	calibOK := make([]byte, calibLen)
	binary.LittleEndian.PutUint16(calibOK[0:2], 27504) // digT1
	binary.LittleEndian.PutUint16(calibOK[6:8], 36477) // digP1
	binary.LittleEndian.PutUint16(calibOK[2:4], 26435) // digT2 (non-zero, optional)
	binary.LittleEndian.PutUint16(calibOK[8:10], 2855) // digP2 (non-zero, optional)

	f := &fakeI2C{
		regs: map[byte][]byte{
			regID: {chipIDBMP280},
		},
		calibSeq: [][]byte{calibZero, calibOK},
	}

	_, err := newWithIO(f, ModeNormal)
	if err != nil {
		t.Fatalf("expected New to succeed, got %v", err)
	}
	if f.calibReads < 2 {
		t.Fatalf("expected calibration to be retried, reads=%d", f.calibReads)
	}
}

func TestNew_FailsOnInvalidCalibration(t *testing.T) {
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })

	calibZero := make([]byte, calibLen)
	f := &fakeI2C{
		regs: map[byte][]byte{
			regID: {chipIDBMP280},
		},
		calibSeq: [][]byte{calibZero, calibZero, calibZero},
	}

	_, err := newWithIO(f, ModeNormal)
	if err == nil {
		t.Fatalf("expected invalid calibration error")
	}
}

// Datasheet section 8.2 worked example.
func datasheetCalib() []byte {
	c := make([]byte, calibLen)
	put := func(off int, v int) { binary.LittleEndian.PutUint16(c[off:off+2], uint16(int16(v))) }
	binary.LittleEndian.PutUint16(c[0:2], 27504)
	put(2, 26435)
	put(4, -1000)
	binary.LittleEndian.PutUint16(c[6:8], 36477)
	put(8, -10685)
	put(10, 3024)
	put(12, 2855)
	put(14, 140)
	put(16, -7)
	put(18, 15500)
	put(20, -14600)
	put(22, 6000)
	return c
}

// adc_P=415148 adc_T=519888
var datasheetRaw = []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00}

func newDatasheetDevice(t *testing.T, raw []byte) (*Device, *fakeI2C) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })

	f := &fakeI2C{
		regs: map[byte][]byte{
			regID:       {chipIDBMP280},
			regPressMsb: raw,
		},
		calibSeq: [][]byte{datasheetCalib()},
	}
	d, err := newWithIO(f, ModeNormal)
	if err != nil {
		t.Fatalf("newWithIO() error: %v", err)
	}
	return d, f
}

func TestNew_RejectsWrongChipID(t *testing.T) {
	f := &fakeI2C{regs: map[byte][]byte{regID: {0x60}}}
	_, err := newWithIO(f, ModeNormal)
	if err == nil || err.Error() != "bmp280: chip id=0x60 want 0x58" {
		t.Fatalf("err=%v want chip id mismatch", err)
	}
}

func TestNew_WritesModeRegisters(t *testing.T) {
	_, f := newDatasheetDevice(t, datasheetRaw)
	if len(f.writes) != 3 {
		t.Fatalf("writes=%v want reset, config, ctrl_meas", f.writes)
	}
	if f.writes[0] != (writeOp{reg: regReset, val: resetCmd}) {
		t.Fatalf("first write=%+v want reset", f.writes[0])
	}
	if f.writes[1].reg != regConfig || f.writes[2].reg != regCtrlMeas {
		t.Fatalf("writes=%+v want config before ctrl_meas", f.writes)
	}
	if f.writes[2].val&0x03 != 0x03 {
		t.Fatalf("ctrl_meas=0x%02X want normal mode bits", f.writes[2].val)
	}
}

func TestRead_DatasheetExample(t *testing.T) {
	d, _ := newDatasheetDevice(t, datasheetRaw)
	tempC, pressPa, err := d.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if math.Abs(tempC-25.08) > 0.01 {
		t.Fatalf("temp=%.3f want 25.08", tempC)
	}
	if math.Abs(pressPa-100653.27) > 1 {
		t.Fatalf("press=%.2f want 100653.27", pressPa)
	}
}

func TestMeasureReference_AveragesSamples(t *testing.T) {
	d, _ := newDatasheetDevice(t, datasheetRaw)
	ref, err := d.MeasureReference(40, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("MeasureReference() error: %v", err)
	}
	if math.Abs(ref-100653.27) > 1 {
		t.Fatalf("ref=%.2f want 100653.27", ref)
	}
	if d.Reference() != ref {
		t.Fatalf("Reference()=%.2f want %.2f", d.Reference(), ref)
	}

	_, alt, err := d.ReadAltitude()
	if err != nil {
		t.Fatalf("ReadAltitude() error: %v", err)
	}
	if math.Abs(alt) > 1e-6 {
		t.Fatalf("alt=%.3f want 0 at reference", alt)
	}
}

func TestMeasureReference_OutOfRangeFallsBack(t *testing.T) {
	// adc_P=500000 compensates to roughly 86 kPa.
	d, _ := newDatasheetDevice(t, []byte{0x7A, 0x12, 0x00, 0x7E, 0xED, 0x00})
	ref, err := d.MeasureReference(4, time.Millisecond)
	if err == nil {
		t.Fatalf("expected out of range error")
	}
	if ref != SeaLevelPa || d.Reference() != SeaLevelPa {
		t.Fatalf("ref=%.2f want %.0f", ref, SeaLevelPa)
	}
}

func TestMeasureReference_ReadFailureFallsBack(t *testing.T) {
	d, f := newDatasheetDevice(t, datasheetRaw)
	delete(f.regs, regPressMsb)
	ref, err := d.MeasureReference(4, time.Millisecond)
	if err == nil {
		t.Fatalf("expected read error")
	}
	if ref != SeaLevelPa {
		t.Fatalf("ref=%.2f want %.0f", ref, SeaLevelPa)
	}

	if _, err := d.MeasureReference(0, time.Millisecond); err == nil {
		t.Fatalf("expected error for zero samples")
	}
}

func TestAltitude(t *testing.T) {
	cases := []struct {
		press, ref float64
		want       float64
	}{
		{press: SeaLevelPa, ref: SeaLevelPa, want: 0},
		{press: 89874.6, ref: SeaLevelPa, want: 1000},
		{press: SeaLevelPa, ref: 89874.6, want: -1000},
		{press: 0, ref: SeaLevelPa, want: 0},
	}
	for _, tc := range cases {
		got := Altitude(tc.press, tc.ref)
		if math.Abs(got-tc.want) > 30 {
			t.Fatalf("Altitude(%.1f, %.1f)=%.2f want ~%.0f", tc.press, tc.ref, got, tc.want)
		}
	}
}
