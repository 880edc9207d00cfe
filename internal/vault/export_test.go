package vault

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/types"
)

func (v *Vault) RolloverPairs(tranches, rolloverTokens []types.Address) (types.RolloverReport, error) {
	return v.rollover(tranches, rolloverTokens)
}

func (v *Vault) CheckTVL(before sdkmath.Int) error {
	return v.checkTVL(before)
}
