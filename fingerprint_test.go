package flakehunt

import (
	"testing"

	"github.com/gogpu/flakehunt/replay"
)

func TestFingerprintSubresourceKeysAreDistinct(t *testing.T) {
	// The same texture bound at two (mip, slice) pairs must produce two
	// independently tracked keys.
	mip0 := &stubBinding{
		bound: replay.BoundResource{Resource: 1, Kind: replay.KindTexture, FirstMip: 0},
		slot:  slotColor,
		reads: [][]byte{[]byte("full resolution")},
	}
	mip1 := &stubBinding{
		bound: replay.BoundResource{Resource: 1, Kind: replay.KindTexture, FirstMip: 1},
		slot:  slotColor,
		reads: [][]byte{[]byte("half resolution")},
	}
	ctrl := newStubController(drawAction(1, "draw", mip0, mip1))

	prints, err := Fingerprint(ctrl, 1)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(prints) != 2 {
		t.Fatalf("got %d keys, want 2", len(prints))
	}

	k0 := ResourceKey{Resource: 1, Subresource: SubresourceDesc{FirstMip: 0}}
	k1 := ResourceKey{Resource: 1, Subresource: SubresourceDesc{FirstMip: 1}}
	if prints[k0] == prints[k1] {
		t.Errorf("digests for distinct subresources are equal")
	}
	if prints[k0] != ComputeDigest([]byte("full resolution")) {
		t.Errorf("mip 0 digest does not match its content")
	}
}

func TestFingerprintIdempotentOnStableContent(t *testing.T) {
	depth := &stubBinding{
		bound: replay.BoundResource{Resource: 3, Kind: replay.KindTexture},
		slot:  slotDepth,
		reads: [][]byte{[]byte("depth bytes")},
	}
	storage := &stubBinding{
		bound: replay.BoundResource{Resource: 4, Kind: replay.KindBuffer},
		slot:  slotReadWrite,
		reads: [][]byte{[]byte("storage bytes")},
	}
	action := stubAction{
		action:   replay.Action{EventID: 2, Flags: replay.FlagDispatch, Name: "dispatch"},
		bindings: []*stubBinding{depth, storage},
		stage:    replay.StageCompute,
	}
	ctrl := newStubController(action)

	first, err := Fingerprint(ctrl, 2)
	if err != nil {
		t.Fatalf("first Fingerprint failed: %v", err)
	}
	second, err := Fingerprint(ctrl, 2)
	if err != nil {
		t.Fatalf("second Fingerprint failed: %v", err)
	}

	if len(first) != 2 {
		t.Fatalf("got %d keys, want 2", len(first))
	}
	for key, digest := range first {
		if second[key] != digest {
			t.Errorf("digest for %v changed between calls", key)
		}
	}
}

func TestFingerprintSkipsNullBindings(t *testing.T) {
	nullColor := &stubBinding{
		bound: replay.BoundResource{Resource: replay.NullResource, Kind: replay.KindTexture},
		slot:  slotColor,
		reads: [][]byte{[]byte("ignored")},
	}
	colorTarget := stableTexture(8, []byte("bound"))
	ctrl := newStubController(drawAction(1, "draw", nullColor, colorTarget))

	prints, err := Fingerprint(ctrl, 1)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(prints) != 1 {
		t.Fatalf("got %d keys, want 1 (null binding must be skipped)", len(prints))
	}
	for key := range prints {
		if key.Resource.Null() {
			t.Errorf("null resource present in fingerprint map")
		}
	}
}

func TestComputeDigestIsStable(t *testing.T) {
	a := ComputeDigest([]byte("payload"))
	b := ComputeDigest([]byte("payload"))
	if a != b {
		t.Errorf("same bytes produced different digests")
	}
	if a == ComputeDigest([]byte("payloae")) {
		t.Errorf("different bytes produced equal digests")
	}
	if len(a.String()) != DigestSize*2 {
		t.Errorf("hex digest length = %d, want %d", len(a.String()), DigestSize*2)
	}
}
