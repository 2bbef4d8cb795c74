package service

import (
	"testing"

	"exportguard/internal/core/domain"

	"github.com/stretchr/testify/require"
)

func rawSnap(soc, load, grid, battery, pv *float64) *domain.TelemetrySnapshot {
	return &domain.TelemetrySnapshot{
		SOCPercent:     soc,
		LoadWatt:       load,
		GridWattRaw:    grid,
		BatteryWattRaw: battery,
		PVWatt:         pv,
		FetchedAt:      t0,
	}
}

func newNormalizer(batteryPosCharge, gridPosImport bool) *SignNormalizer {
	return &SignNormalizer{
		BatteryPositiveIsCharge:  batteryPosCharge,
		GridPositiveIsImport:     gridPosImport,
		BatteryIdleThresholdWatt: 25,
		Logger:                   testLogger,
	}
}

func TestSignNormalizationIsInvertible(t *testing.T) {
	require := require.New(t)

	for _, bPos := range []bool{true, false} {
		for _, gPos := range []bool{true, false} {
			for _, battery := range []float64{-1500, -10, 0, 10, 1500} {
				for _, grid := range []float64{-4000, 0, 4000} {
					b, g := NormalizeSigns(battery, grid, bPos, gPos)
					br, gr := DenormalizeSigns(b, g, bPos, gPos)
					require.Equal(battery, br)
					require.Equal(grid, gr)
				}
			}
		}
	}
}

func TestBatteryStateClassification(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)

	// +1200 with positive-is-charge: charging
	tel := n.Normalize(rawSnap(f64(60), f64(400), f64(0), f64(1200), f64(2000)))
	require.NotNil(tel)
	require.Equal(domain.BatteryStateCharging, tel.BatteryState)
	require.EqualValues(1200, tel.ChargeWatt)
	require.EqualValues(0, tel.DischargeWatt)

	// within the idle band
	tel = n.Normalize(rawSnap(f64(60), f64(400), f64(0), f64(-20), f64(2000)))
	require.Equal(domain.BatteryStateIdle, tel.BatteryState)

	tel = n.Normalize(rawSnap(f64(60), f64(400), f64(0), f64(-800), f64(2000)))
	require.Equal(domain.BatteryStateDischarging, tel.BatteryState)
	require.EqualValues(800, tel.DischargeWatt)

	// provider reporting discharge as positive
	inv := newNormalizer(false, true)
	tel = inv.Normalize(rawSnap(f64(60), f64(400), f64(0), f64(800), f64(2000)))
	require.Equal(domain.BatteryStateDischarging, tel.BatteryState)
	require.EqualValues(800, tel.DischargeWatt)
}

func TestGridImportExportSplit(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)

	tel := n.Normalize(rawSnap(f64(60), f64(400), f64(-1500), nil, nil))
	require.EqualValues(1500, tel.GridExportWatt)
	require.EqualValues(0, tel.GridImportWatt)

	tel = n.Normalize(rawSnap(f64(60), f64(400), f64(900), nil, nil))
	require.EqualValues(900, tel.GridImportWatt)

	// provider reporting export as positive
	inv := newNormalizer(true, false)
	tel = inv.Normalize(rawSnap(f64(60), f64(400), f64(1500), nil, nil))
	require.EqualValues(1500, tel.GridExportWatt)
}

func TestNormalizeRequiresLoad(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)
	require.Nil(n.Normalize(nil))
	require.Nil(n.Normalize(rawSnap(f64(60), nil, f64(100), f64(100), f64(100))))
}

func TestMissingOptionalReadingsStayNil(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)
	tel := n.Normalize(rawSnap(nil, f64(400), nil, nil, nil))
	require.NotNil(tel)
	require.Nil(tel.SOCPercent)
	require.Nil(tel.GridWatt)
	require.Nil(tel.BatteryWatt)
	require.Equal(domain.BatteryStateUnknown, tel.BatteryState)
}

func TestGridSignAutodetectFlips(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)
	n.Autodetect = true

	// load 1000, pv 0, battery 0: the balance only closes with +1000 grid
	// import. Feed -1000 so only the flipped orientation fits.
	for i := 0; i < signDetectMinFits; i++ {
		tel := n.Normalize(rawSnap(f64(60), f64(1000), f64(-1000), f64(0), f64(0)))
		if i < signDetectMinFits-1 {
			require.False(tel.GridSignAuto)
		}
	}

	tel := n.Normalize(rawSnap(f64(60), f64(1000), f64(-1000), f64(0), f64(0)))
	require.True(tel.GridSignAuto)
	require.EqualValues(1000, tel.GridImportWatt)
	require.EqualValues(0, tel.GridExportWatt)
}

func TestGridSignAutodetectFlipsControlFieldsOnly(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)
	n.Autodetect = true

	for i := 0; i < signDetectMinFits; i++ {
		n.Normalize(rawSnap(f64(60), f64(1000), f64(-1000), f64(0), f64(0)))
	}

	tel := n.Normalize(rawSnap(f64(60), f64(1000), f64(-1000), f64(0), f64(0)))
	require.True(tel.GridSignAuto)
	// the flip feeds planning only; the displayed reading keeps the
	// configured convention
	require.EqualValues(-1000, *tel.GridWatt)
	require.EqualValues(1000, tel.GridImportWatt)
	require.EqualValues(0, tel.GridExportWatt)
}

func TestGridSignAutodetectKeepsConsistentReadings(t *testing.T) {
	require := require.New(t)

	n := newNormalizer(true, true)
	n.Autodetect = true

	// balanced as configured: load 1000 = pv 0 + grid 1000 - battery 0
	for i := 0; i < signDetectWindow*2; i++ {
		tel := n.Normalize(rawSnap(f64(60), f64(1000), f64(1000), f64(0), f64(0)))
		require.False(tel.GridSignAuto)
		require.EqualValues(1000, tel.GridImportWatt)
	}
}
