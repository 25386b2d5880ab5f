package domain

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Side is an exchange order side.
type Side string

const (
	SideBack Side = "BACK"
	SideLay  Side = "LAY"
)

const (
	OrderTypeLimit = "LIMIT"

	PersistenceLapse   = "LAPSE"
	PersistencePersist = "PERSIST"
)

// PriceEpsilon is the tolerance used for all price equality checks.
// Exchange odds are quoted to two decimal places.
const PriceEpsilon = 0.01

// SamePrice reports whether two prices are equal within PriceEpsilon.
func SamePrice(a, b float64) bool {
	return math.Abs(a-b) <= PriceEpsilon
}

// OrderIntent is the output of the decision engine: a fully specified
// limit order the worker should try to place. Ephemeral; it is consumed
// immediately by the concurrency guard and submitter.
type OrderIntent struct {
	SelectionID int64   `json:"selection_id"`
	Side        Side    `json:"side"`
	Price       float64 `json:"price"`
	Reason      string  `json:"reason"`
	OldPrice    float64 `json:"old_price"`
	NewPrice    float64 `json:"new_price"`
}

// PriceKey builds the composite in-flight key for a selection and price.
// The price is rounded to two decimals so near-identical float values
// collapse onto one key.
func PriceKey(selectionID int64, price float64) string {
	return strconv.FormatInt(selectionID, 10) + ":" + decimal.NewFromFloat(price).Round(2).String()
}
