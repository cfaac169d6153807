package models

import (
	"fmt"
	"strings"
)

// AssetClass identifies the market an instrument trades in.
type AssetClass string

const (
	AssetClassEquityPK    AssetClass = "equity-PK"
	AssetClassEquityUS    AssetClass = "equity-US"
	AssetClassCrypto      AssetClass = "crypto"
	AssetClassCash        AssetClass = "cash"
	AssetClassMetals      AssetClass = "metals"
	AssetClassCommodities AssetClass = "commodities"
	AssetClassIndex       AssetClass = "index"
)

// AllAssetClasses lists every supported class in display order.
var AllAssetClasses = []AssetClass{
	AssetClassEquityPK,
	AssetClassEquityUS,
	AssetClassCrypto,
	AssetClassCash,
	AssetClassMetals,
	AssetClassCommodities,
	AssetClassIndex,
}

// ParseAssetClass matches a class name case-insensitively.
func ParseAssetClass(s string) (AssetClass, error) {
	s = strings.TrimSpace(s)
	for _, c := range AllAssetClasses {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// CashSymbol is the symbol of the degenerate cash position line.
const CashSymbol = "CASH"

// AssetKey identifies one fungible position line. All lot, price and cash
// bookkeeping is partitioned by it.
type AssetKey struct {
	Class    AssetClass `json:"asset_class"`
	Symbol   string     `json:"symbol"`
	Currency string     `json:"currency"`
}

// NewAssetKey normalises symbol and currency to upper case.
func NewAssetKey(class AssetClass, symbol, currency string) AssetKey {
	return AssetKey{
		Class:    class,
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
	}
}

// CashKey returns the cash line for a currency.
func CashKey(currency string) AssetKey {
	return NewAssetKey(AssetClassCash, CashSymbol, currency)
}

// IsCash reports whether the key is a cash balance line.
func (k AssetKey) IsCash() bool {
	return k.Class == AssetClassCash
}

// String renders the key as class:SYMBOL:CCY, which is also its storage id.
func (k AssetKey) String() string {
	return string(k.Class) + ":" + k.Symbol + ":" + k.Currency
}

// ParseAssetKey is the inverse of AssetKey.String.
func ParseAssetKey(s string) (AssetKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return AssetKey{}, fmt.Errorf("invalid asset key %q", s)
	}
	class, err := ParseAssetClass(parts[0])
	if err != nil {
		return AssetKey{}, err
	}
	return NewAssetKey(class, parts[1], parts[2]), nil
}

// Less orders keys by class, symbol, then currency.
func (k AssetKey) Less(o AssetKey) bool {
	if k.Class != o.Class {
		return k.Class < o.Class
	}
	if k.Symbol != o.Symbol {
		return k.Symbol < o.Symbol
	}
	return k.Currency < o.Currency
}
