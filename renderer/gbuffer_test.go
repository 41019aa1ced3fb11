package renderer

import (
	"errors"
	"testing"

	"deferred-renderer/core"
)

func TestGeometryBufferSwapKeepsIndicesComplementary(t *testing.T) {
	dev := newFakeDevice()
	gb, err := NewGeometryBuffer(dev, core.Size{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("NewGeometryBuffer: %v", err)
	}
	defer gb.Destroy()

	if gb.Input() != 0 || gb.Output() != 1 {
		t.Fatalf("initial indices: expected 0/1, got %d/%d", gb.Input(), gb.Output())
	}
	for i := 0; i < 5; i++ {
		gb.SwapInputOutput()
		if gb.Input() == gb.Output() {
			t.Fatalf("swap %d: input and output both %d", i, gb.Input())
		}
		if gb.Input()+gb.Output() != 1 {
			t.Fatalf("swap %d: indices out of range %d/%d", i, gb.Input(), gb.Output())
		}
	}
}

func TestGeometryBufferBindForWrite(t *testing.T) {
	dev := newFakeDevice()
	gb, err := NewGeometryBuffer(dev, core.Size{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("NewGeometryBuffer: %v", err)
	}
	defer gb.Destroy()

	gb.BindForWrite()
	if dev.fb != gb.Framebuffer() {
		t.Errorf("bound framebuffer: expected %d, got %d", gb.Framebuffer(), dev.fb)
	}
	want := []Attachment{ColorAttachment(0), ColorAttachment(1), ColorAttachment(imageAttachment0 + gb.Output())}
	if len(dev.drawBuffers) != len(want) {
		t.Fatalf("draw buffers: expected %v, got %v", want, dev.drawBuffers)
	}
	for i := range want {
		if dev.drawBuffers[i] != want[i] {
			t.Errorf("draw buffer %d: expected %v, got %v", i, want[i], dev.drawBuffers[i])
		}
	}
	if dev.units[InputImageTextureUnit] != gb.Image(gb.Input()) {
		t.Errorf("input image unit: expected %d, got %d", gb.Image(gb.Input()), dev.units[InputImageTextureUnit])
	}
}

func TestGeometryBufferBindForReadWritesOnlyOutput(t *testing.T) {
	dev := newFakeDevice()
	gb, err := NewGeometryBuffer(dev, core.Size{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("NewGeometryBuffer: %v", err)
	}
	defer gb.Destroy()

	gb.SwapInputOutput()
	gb.BindForRead()

	if len(dev.drawBuffers) != 1 || dev.drawBuffers[0] != ColorAttachment(imageAttachment0+gb.Output()) {
		t.Errorf("draw buffers: expected only output image, got %v", dev.drawBuffers)
	}
	for _, unit := range []int{DiffuseRoughnessTextureUnit, NormalMetalnessTextureUnit, DepthStencilTextureUnit, InputImageTextureUnit} {
		if dev.units[unit] == 0 {
			t.Errorf("unit %d: expected a bound texture", unit)
		}
	}
	if dev.units[InputImageTextureUnit] == gb.Image(gb.Output()) {
		t.Error("output image is bound for reading")
	}
}

func TestGeometryBufferClearOutputTouchesOnlyOutput(t *testing.T) {
	dev := newFakeDevice()
	gb, err := NewGeometryBuffer(dev, core.Size{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("NewGeometryBuffer: %v", err)
	}
	defer gb.Destroy()

	gb.ClearOutput(core.ColorBlack)
	last := dev.clears[len(dev.clears)-1]
	if len(last.targets) != 1 || last.targets[0] != uint32(gb.Image(gb.Output())) {
		t.Errorf("clear targets: expected [%d], got %v", gb.Image(gb.Output()), last.targets)
	}
	if last.mask != ClearColorBit {
		t.Errorf("clear mask: expected color only, got %v", last.mask)
	}
}

func TestGeometryBufferPartialFailureLeaksNothing(t *testing.T) {
	for failAt := 1; failAt <= 6; failAt++ {
		dev := newFakeDevice()
		dev.failAt = failAt
		gb, err := NewGeometryBuffer(dev, core.Size{Width: 32, Height: 32})
		if !errors.Is(err, errFakeCreate) {
			t.Fatalf("failAt %d: expected create failure, got %v", failAt, err)
		}
		if gb != nil {
			t.Errorf("failAt %d: expected nil buffer", failAt)
		}
		if len(dev.live) != 0 {
			t.Errorf("failAt %d: %d objects leaked", failAt, len(dev.live))
		}
	}
}

func TestGeometryBufferIncompleteFramebuffer(t *testing.T) {
	dev := newFakeDevice()
	dev.incomplete = true
	_, err := NewGeometryBuffer(dev, core.Size{Width: 32, Height: 32})
	if !errors.Is(err, ErrIncompleteFramebuffer) {
		t.Fatalf("expected ErrIncompleteFramebuffer, got %v", err)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d objects leaked", len(dev.live))
	}
}

func TestGeometryBufferRejectsEmptySize(t *testing.T) {
	_, err := NewGeometryBuffer(newFakeDevice(), core.Size{Width: 0, Height: 600})
	if !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestGeometryBufferResizeReleasesEverything(t *testing.T) {
	dev := newFakeDevice()
	gb, err := NewGeometryBuffer(dev, core.Size{Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("NewGeometryBuffer: %v", err)
	}
	perBuild := dev.created

	if err := gb.Resize(core.Size{Width: 1920, Height: 1080}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if dev.deleted != perBuild {
		t.Errorf("resize deletions: expected %d, got %d", perBuild, dev.deleted)
	}
	if dev.created != 2*perBuild {
		t.Errorf("resize creations: expected %d, got %d", 2*perBuild, dev.created)
	}
	if gb.Size() != (core.Size{Width: 1920, Height: 1080}) {
		t.Errorf("size: expected 1920x1080, got %v", gb.Size())
	}

	gb.Destroy()
	gb.Destroy()
	if dev.created != dev.deleted {
		t.Errorf("allocations %d != deallocations %d", dev.created, dev.deleted)
	}
}
