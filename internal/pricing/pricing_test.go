package pricing

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/types"
)

const (
	ampl   types.Address = "ampl"
	holder types.Address = "holder"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	ledger *ledger.Ledger
	clock  *testClock
	issuer *bond.Issuer
	bond   bond.Bond
}

func newFixture(t *testing.T, ratios ...uint64) *fixture {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.RegisterToken(ampl, true))
	clock := &testClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	iss, err := bond.NewIssuer(l, clock, ampl, bond.IssuerParams{
		TrancheRatios:        ratios,
		MinIssueTimeInterval: 24 * time.Hour,
		Duration:             28 * 24 * time.Hour,
	})
	require.NoError(t, err)
	b, err := iss.GetLatestBond()
	require.NoError(t, err)
	require.NoError(t, l.Mint(ampl, holder, sdkmath.NewInt(1000)))
	_, err = b.Deposit(holder, sdkmath.NewInt(1000))
	require.NoError(t, err)
	return &fixture{ledger: l, clock: clock, issuer: iss, bond: b}
}

func (f *fixture) matureAndRebase(t *testing.T, perc sdkmath.LegacyDec) {
	t.Helper()
	f.clock.now = f.bond.MaturityTime()
	require.NoError(t, f.bond.Mature())
	require.NoError(t, f.ledger.RebaseByPerc(ampl, perc))
}

func TestUnderlyingIsAlwaysPar(t *testing.T) {
	f := newFixture(t, 500, 500)
	for _, kind := range []Kind{KindUnit, KindCDR, KindCDRLowerBound} {
		p, err := New(kind, f.issuer, ampl).Price(ampl)
		require.NoError(t, err)
		assert.True(t, types.PriceOne.Equal(p), kind.String())
	}
}

func TestImmatureTranchesPriceAtPar(t *testing.T) {
	f := newFixture(t, 500, 500)
	require.NoError(t, f.ledger.RebaseByPerc(ampl, sdkmath.LegacyNewDecWithPrec(1, 1)))
	for _, kind := range []Kind{KindUnit, KindCDR, KindCDRLowerBound} {
		p, err := New(kind, f.issuer, ampl).Price(f.bond.Tranches()[0].Token)
		require.NoError(t, err)
		assert.True(t, types.PriceOne.Equal(p), kind.String())
	}
}

func TestCDRPricesPastMaturityBeforeSettlement(t *testing.T) {
	f := newFixture(t, 500, 500)
	require.NoError(t, f.ledger.RebaseByPerc(ampl, sdkmath.LegacyNewDecWithPrec(-4, 1)))
	f.clock.now = f.bond.MaturityTime()

	strategy := New(KindCDR, f.issuer, ampl)
	senior, err := strategy.Price(f.bond.Tranches()[0].Token)
	require.NoError(t, err)
	assert.True(t, types.PriceOne.Equal(senior))

	// 600 collateral left: the junior claims 100 against 500 supply
	junior, err := strategy.Price(f.bond.Tranches()[1].Token)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000_000), junior.Int64())
}

func TestCDRAfterPositiveRebase(t *testing.T) {
	f := newFixture(t, 500, 500)
	f.matureAndRebase(t, sdkmath.LegacyNewDecWithPrec(1, 1))
	senior := f.bond.Tranches()[0].Token

	p, err := New(KindCDR, f.issuer, ampl).Price(senior)
	require.NoError(t, err)
	assert.Equal(t, int64(110_000_000), p.Int64())

	p, err = New(KindCDRLowerBound, f.issuer, ampl).Price(senior)
	require.NoError(t, err)
	assert.Equal(t, int64(110_000_000), p.Int64())

	p, err = New(KindUnit, f.issuer, ampl).Price(senior)
	require.NoError(t, err)
	assert.True(t, types.PriceOne.Equal(p))
}

func TestCDRLowerBoundAfterNegativeRebase(t *testing.T) {
	f := newFixture(t, 500, 500)
	f.matureAndRebase(t, sdkmath.LegacyNewDecWithPrec(-2, 1))
	senior := f.bond.Tranches()[0].Token

	p, err := New(KindCDR, f.issuer, ampl).Price(senior)
	require.NoError(t, err)
	assert.Equal(t, int64(80_000_000), p.Int64())

	p, err = New(KindCDRLowerBound, f.issuer, ampl).Price(senior)
	require.NoError(t, err)
	assert.True(t, types.PriceOne.Equal(p))
}

func TestUnknownToken(t *testing.T) {
	f := newFixture(t, 500, 500)
	_, err := New(KindCDR, f.issuer, ampl).Price("stranger")
	assert.ErrorIs(t, err, types.ErrUnknownToken)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("CDR_LOWER_BOUND")
	require.NoError(t, err)
	assert.Equal(t, KindCDRLowerBound, k)
	_, err = ParseKind("oracle")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
