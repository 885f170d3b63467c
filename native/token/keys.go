package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	currencyMetaPrefix    = []byte("token/currency/meta/")
	currencyBalancePrefix = []byte("token/currency/balance/")
	factoryNonceKey       = []byte("token/currency/factory/nonce")
	reserveBalancePrefix  = []byte("token/reserve/balance/")
	reserveAllowPrefix    = []byte("token/reserve/allowance/")
	reserveSupplyPrefix   = []byte("token/reserve/supply/")
)

func join(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

func currencyMetaKey(ref common.Address) []byte {
	return join(currencyMetaPrefix, ref.Bytes())
}

func currencyBalanceKey(ref, account common.Address) []byte {
	return join(currencyBalancePrefix, ref.Bytes(), account.Bytes())
}

func reserveBalanceKey(asset string, account common.Address) []byte {
	return join(reserveBalancePrefix, []byte(normaliseAsset(asset)), account.Bytes())
}

func reserveAllowanceKey(asset string, owner, spender common.Address) []byte {
	return join(reserveAllowPrefix, []byte(normaliseAsset(asset)), owner.Bytes(), spender.Bytes())
}

func reserveSupplyKey(asset string) []byte {
	return join(reserveSupplyPrefix, []byte(normaliseAsset(asset)))
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
