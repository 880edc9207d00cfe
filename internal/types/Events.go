/*

Event types and attribute keys emitted into the ledger's event log.

*/

package types

const (
	EventTypeAssetSynced       = "asset_synced"
	EventTypeDeposit           = "deposit"
	EventTypeRedeem            = "redeem"
	EventTypeRollover          = "rollover"
	EventTypeDeploy            = "deploy"
	EventTypeRecover           = "recover"
	EventTypeSwap              = "swap"
	EventTypeMeld              = "meld"
	EventTypeBondIssued        = "bond_issued"
	EventTypeBondMatured       = "bond_matured"
	EventTypeRebase            = "rebase"
	EventTypeFeePolicyUpdated  = "fee_policy_updated"
	EventTypeDiscountUpdated   = "discount_updated"
	EventTypeDepositBondUpdate = "deposit_bond_updated"

	AttributeKeyOwner      = "owner"
	AttributeKeyToken      = "token"
	AttributeKeyBalance    = "balance"
	AttributeKeySender     = "sender"
	AttributeKeyAmount     = "amount"
	AttributeKeyMinted     = "minted"
	AttributeKeyBurned     = "burned"
	AttributeKeyFeePerc    = "fee_perc"
	AttributeKeyTrancheIn  = "tranche_in"
	AttributeKeyTokenOut   = "token_out"
	AttributeKeyAmountIn   = "amount_in"
	AttributeKeyAmountOut  = "amount_out"
	AttributeKeyPerpAmount = "perp_amount"
	AttributeKeyBond       = "bond"
	AttributeKeyMaturity   = "maturity"
	AttributeKeySupply     = "supply"
	AttributeKeyDirection  = "direction"
	AttributeKeyClass      = "class"
)
