package bond

import (
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/types"
)

// IssuerParams configures the bonds the issuer creates.
type IssuerParams struct {
	TrancheRatios        []uint64      `json:"tranche_ratios"`
	MinIssueTimeInterval time.Duration `json:"min_issue_time_interval"`
	Duration             time.Duration `json:"duration"`
}

func (p IssuerParams) Validate() error {
	if err := ValidateRatios(p.TrancheRatios); err != nil {
		return err
	}
	if p.Duration <= 0 || p.MinIssueTimeInterval <= 0 {
		return fmt.Errorf("%w: duration and issue interval must be positive", types.ErrInvalidBondParams)
	}
	return nil
}

// Issuer creates bonds on a fixed schedule for a single collateral token and resolves tranches back to
// their bond.
type Issuer struct {
	ledger     *ledger.Ledger
	clock      types.Clock
	collateral types.Address
	params     IssuerParams

	bonds     []*ledgerBond
	byTranche map[types.Address]*ledgerBond
	lastIssue time.Time
}

type issuerSnapshot struct {
	count     int
	settled   []bool
	lastIssue time.Time
}

func NewIssuer(l *ledger.Ledger, clock types.Clock, collateral types.Address, params IssuerParams) (*Issuer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !l.HasToken(collateral) {
		return nil, fmt.Errorf("%w: collateral %s", types.ErrUnknownToken, collateral)
	}
	iss := &Issuer{
		ledger:     l,
		clock:      clock,
		collateral: collateral,
		params:     params,
		byTranche:  make(map[types.Address]*ledgerBond),
	}
	l.Register(iss)
	return iss, nil
}

func (iss *Issuer) Params() IssuerParams     { return iss.params }
func (iss *Issuer) Collateral() types.Address { return iss.collateral }

// GetLatestBond returns the most recently issued bond, issuing a new one when none exists or the
// issue interval has elapsed.
func (iss *Issuer) GetLatestBond() (Bond, error) {
	now := iss.clock.Now()
	if len(iss.bonds) > 0 && now.Sub(iss.lastIssue) < iss.params.MinIssueTimeInterval {
		return iss.bonds[len(iss.bonds)-1], nil
	}
	return iss.issue(now)
}

func (iss *Issuer) issue(now time.Time) (Bond, error) {
	addr := types.Address(fmt.Sprintf("bond%d", len(iss.bonds)+1))
	b, err := newLedgerBond(iss.ledger, iss.clock, addr, iss.collateral, iss.params.TrancheRatios, iss.params.Duration)
	if err != nil {
		return nil, err
	}
	iss.bonds = append(iss.bonds, b)
	for _, t := range b.tranches {
		iss.byTranche[t.Token] = b
	}
	iss.lastIssue = now
	iss.ledger.EmitEvent(sdk.NewEvent(types.EventTypeBondIssued,
		sdk.NewAttribute(types.AttributeKeyBond, addr.String()),
		sdk.NewAttribute(types.AttributeKeyMaturity, b.maturity.Format(time.RFC3339)),
	))
	return b, nil
}

// BondOf resolves a tranche token to the bond that issued it.
func (iss *Issuer) BondOf(tranche types.Address) (Bond, bool) {
	b, ok := iss.byTranche[tranche]
	if !ok {
		return nil, false
	}
	return b, true
}

func (iss *Issuer) IsTranche(token types.Address) bool {
	_, ok := iss.byTranche[token]
	return ok
}

func (iss *Issuer) Bonds() []Bond {
	out := make([]Bond, len(iss.bonds))
	for i, b := range iss.bonds {
		out[i] = b
	}
	return out
}

func (iss *Issuer) Snapshot() any {
	s := issuerSnapshot{
		count:     len(iss.bonds),
		settled:   make([]bool, len(iss.bonds)),
		lastIssue: iss.lastIssue,
	}
	for i, b := range iss.bonds {
		s.settled[i] = b.settled
	}
	return s
}

func (iss *Issuer) Restore(snapshot any) {
	s := snapshot.(issuerSnapshot)
	for _, b := range iss.bonds[s.count:] {
		for _, t := range b.tranches {
			delete(iss.byTranche, t.Token)
		}
	}
	iss.bonds = iss.bonds[:s.count]
	for i, b := range iss.bonds {
		b.settled = s.settled[i]
	}
	iss.lastIssue = s.lastIssue
}
