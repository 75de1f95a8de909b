package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// PaymentsABIJSON covers the payments contract calls the engine makes.
const PaymentsABIJSON = `[
  {"type":"function","name":"accounts","stateMutability":"view",
   "inputs":[{"name":"token","type":"address"},{"name":"owner","type":"address"}],
   "outputs":[{"name":"funds","type":"uint256"},{"name":"lockupCurrent","type":"uint256"},
              {"name":"lockupRate","type":"uint256"},{"name":"lockupLastSettledAt","type":"uint256"}]},
  {"type":"function","name":"operatorApprovals","stateMutability":"view",
   "inputs":[{"name":"token","type":"address"},{"name":"client","type":"address"},{"name":"operator","type":"address"}],
   "outputs":[{"name":"isApproved","type":"bool"},{"name":"rateAllowance","type":"uint256"},
              {"name":"lockupAllowance","type":"uint256"},{"name":"rateUsage","type":"uint256"},
              {"name":"lockupUsage","type":"uint256"},{"name":"maxLockupPeriod","type":"uint256"}]},
  {"type":"function","name":"deposit","stateMutability":"payable",
   "inputs":[{"name":"token","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"setOperatorApproval","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"address"},{"name":"operator","type":"address"},{"name":"approved","type":"bool"},
             {"name":"rateAllowance","type":"uint256"},{"name":"lockupAllowance","type":"uint256"},
             {"name":"maxLockupPeriod","type":"uint256"}],
   "outputs":[]}
]`

// ERC20ABIJSON is the subset of ERC-20 used for the payment token.
const ERC20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// StorageServiceABIJSON exposes the storage service's list price.
const StorageServiceABIJSON = `[
  {"type":"function","name":"pricePerTiBPerEpoch","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

type contractABIs struct {
	payments abi.ABI
	erc20    abi.ABI
	service  abi.ABI
}

func parseABIs() (*contractABIs, error) {
	payments, err := abi.JSON(strings.NewReader(PaymentsABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse payments abi: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(ERC20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	service, err := abi.JSON(strings.NewReader(StorageServiceABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse storage service abi: %w", err)
	}
	return &contractABIs{payments: payments, erc20: erc20, service: service}, nil
}
