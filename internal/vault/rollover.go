package vault

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/types"
)

// rollover walks the vault's tranches (cursor i) against perp's rollover list (cursor j), exchanging
// one pair per iteration. Every iteration either empties one side of the pair or advances a cursor,
// so it runs at most len(tranches)+len(rolloverTokens) times.
func (v *Vault) rollover(tranches, rolloverTokens []types.Address) (types.RolloverReport, error) {
	report := types.RolloverReport{TotalPerpRolledOver: sdkmath.ZeroInt()}

	i, j := 0, 0
	for i < len(tranches) && j < len(rolloverTokens) {
		report.Iterations++
		trancheIn, tokenOut := tranches[i], rolloverTokens[j]

		if !v.perp.GetReserveTokenBalance(tokenOut).IsPositive() {
			j++
			continue
		}
		trancheInAmtAvailable := v.balance(trancheIn)
		if !trancheInAmtAvailable.IsPositive() {
			i++
			continue
		}

		preview, err := v.perp.ComputeRolloverAmt(trancheIn, tokenOut, trancheInAmtAvailable)
		if err != nil {
			return report, err
		}
		if !preview.PerpRolloverAmt.IsPositive() {
			i++
			continue
		}

		r, err := v.perp.Rollover(v.cfg.Address, trancheIn, tokenOut, trancheInAmtAvailable)
		if err != nil {
			return report, err
		}
		if err := v.sync(trancheIn, tokenOut); err != nil {
			return report, err
		}
		report.TotalPerpRolledOver = report.TotalPerpRolledOver.Add(r.PerpRolloverAmt)
		report.Pairs = append(report.Pairs, types.RolloverPair{TrancheIn: trancheIn, TokenOut: tokenOut, RolloverData: r})

		// A partial take means perp ran out of tokenOut.
		if r.TrancheInAmt.Equal(trancheInAmtAvailable) {
			i++
		} else {
			j++
		}
	}

	vaultLogger.Debug().
		Int("iterations", report.Iterations).
		Int("pairs", len(report.Pairs)).
		Str("perpRolledOver", report.TotalPerpRolledOver.String()).
		Msg("Rollover complete")
	return report, nil
}
