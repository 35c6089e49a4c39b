package codec

import (
	"encoding/binary"
	"testing"

	edsruntime "github.com/edsworks/eds-runtime"
)

func BenchmarkPack_Point(b *testing.B) {
	reg, app := mount(b, buildGeometry(b))
	point := edsruntime.MakeTypeHandle(0, app, 3)
	p := NewPacker(reg)
	native := make([]byte, 4)
	binary.NativeEndian.PutUint16(native[0:], 1)
	binary.NativeEndian.PutUint16(native[2:], 2)
	dst := make([]byte, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.PackCompleteObject(point, dst, native)
	}
}

func BenchmarkUnpack_Point(b *testing.B) {
	reg, app := mount(b, buildGeometry(b))
	point := edsruntime.MakeTypeHandle(0, app, 3)
	u := NewUnpacker(reg)
	wire := []byte{0x01, 0x00, 0x02, 0x00}
	out := make([]byte, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = u.UnpackCompleteObject(point, out, wire)
	}
}

func BenchmarkPack_TelemetryFrame(b *testing.B) {
	reg, app := mount(b, buildTelemetry(b))
	tm := edsruntime.MakeTypeHandle(0, app, 3)
	p := NewPacker(reg)
	native := make([]byte, 12)
	binary.NativeEndian.PutUint32(native[nativeOff(b, reg, tm, "data"):], 0xDEADBEEF)
	dst := make([]byte, 10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.PackCompleteObject(tm, dst, native)
	}
}

func BenchmarkUnpack_TelemetryFrame(b *testing.B) {
	reg, app := mount(b, buildTelemetry(b))
	tm := edsruntime.MakeTypeHandle(0, app, 3)
	p := NewPacker(reg)
	native := make([]byte, 12)
	binary.NativeEndian.PutUint32(native[nativeOff(b, reg, tm, "data"):], 0xDEADBEEF)
	wire := make([]byte, 10)
	if _, err := p.PackCompleteObject(tm, wire, native); err != nil {
		b.Fatalf("pack: %v", err)
	}
	u := NewUnpacker(reg)
	out := make([]byte, 12)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = u.UnpackCompleteObject(tm, out, wire)
	}
}

func BenchmarkPack_Identified(b *testing.B) {
	reg, app := mount(b, buildCommands(b))
	msg := edsruntime.MakeTypeHandle(0, app, 3)
	reboot := edsruntime.MakeTypeHandle(0, app, 5)
	p := NewPacker(reg)
	src := make([]byte, 8)
	if err := p.InitializeNativeObject(reboot, src); err != nil {
		b.Fatalf("init: %v", err)
	}
	dst := make([]byte, 6)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.PackCompleteObject(msg, dst, src)
	}
}

func BenchmarkSwapInPlace(b *testing.B) {
	reg, app := mount(b, buildSwapBox(b))
	box := edsruntime.MakeTypeHandle(0, app, 5)
	buf := make([]byte, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = SwapInPlace(reg, box, buf)
	}
}
