package status

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dw3000-go/pkg/chip"
)

type stsFunc func() (uint16, error)

func (f stsFunc) ReadStsStatus() (uint16, error) { return f() }

func TestClassifyErrorBits(t *testing.T) {
	var c Counters
	lo := chip.SYS_STATUS_RXPHE | chip.SYS_STATUS_RXPTO
	if err := Classify(lo, nil, &c); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := Counters{NoFrameGood: 1, PHYHeader: 1, PreambleTimeout: 1}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyInferredCRC(t *testing.T) {
	var c Counters
	// Frame received but the check never passed: the CRC failure is
	// inferred from the bit pair, there is no dedicated status bit.
	if err := Classify(chip.SYS_STATUS_RXFR, nil, &c); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.BadCRC != 1 {
		t.Errorf("BadCRC = %d, want 1", c.BadCRC)
	}
	if c.NoFrameGood != 1 {
		t.Errorf("NoFrameGood = %d, want 1", c.NoFrameGood)
	}

	// A good frame infers nothing.
	c = Counters{}
	if err := Classify(chip.SYS_STATUS_RXFR|chip.SYS_STATUS_RXFCG, nil, &c); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c != (Counters{}) {
		t.Errorf("good frame incremented counters: %+v", c)
	}
}

func TestClassifyTimeouts(t *testing.T) {
	var c Counters
	lo := chip.SYS_STATUS_RXFTO | chip.SYS_STATUS_RXSTO | chip.SYS_STATUS_ARFE |
		chip.SYS_STATUS_RXRFSL
	if err := Classify(lo, nil, &c); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := Counters{
		NoFrameGood:  1,
		ReedSolomon:  1,
		FilterReject: 1,
		RxTimeout:    1,
		SFDTimeout:   1,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifySTSSubReasons(t *testing.T) {
	var c Counters
	reads := 0
	sts := stsFunc(func() (uint16, error) {
		reads++
		return chip.STS_STATUS_PEAK_GROWTH | chip.STS_STATUS_SFD_COUNT |
			chip.STS_STATUS_COARSE_EMPTY | chip.STS_STATUS_NON_TRIANGLE |
			chip.STS_STATUS_LOG_REG_FAILED, nil
	})

	if err := Classify(chip.SYS_STATUS_CPERR, sts, &c); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if reads != 1 {
		t.Errorf("quality word read %d times, want 1", reads)
	}
	want := Counters{
		NoFrameGood:     1,
		STSPeakGrowth:   1,
		STSSFDCount:     1,
		STSCoarseEmpty:  1,
		STSNonTriangle:  1,
		STSLogRegFailed: 1,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifySTSReadFailure(t *testing.T) {
	var c Counters
	sts := stsFunc(func() (uint16, error) { return 0, fmt.Errorf("bus gone") })

	err := Classify(chip.SYS_STATUS_CPERR|chip.SYS_STATUS_RXPHE, sts, &c)
	if err == nil {
		t.Fatalf("quality read failure swallowed")
	}
	// Bits recognized before the failed read still counted.
	if c.PHYHeader != 1 {
		t.Errorf("PHYHeader = %d, want 1", c.PHYHeader)
	}
}

func TestClassifyAccumulates(t *testing.T) {
	var c Counters
	for i := 0; i < 3; i++ {
		if err := Classify(chip.SYS_STATUS_RXPTO|chip.SYS_STATUS_RXFCG, nil, &c); err != nil {
			t.Fatalf("Classify: %v", err)
		}
	}
	if c.PreambleTimeout != 3 {
		t.Errorf("PreambleTimeout = %d, want 3", c.PreambleTimeout)
	}
	if c.NoFrameGood != 0 {
		t.Errorf("NoFrameGood = %d with RXFCG set, want 0", c.NoFrameGood)
	}
}
