package pipeline

import (
	"fmt"
	"strings"
)

// DType is the value type of a dataset column
type DType int

const (
	// Float64 columns hold numeric values; NaN marks a missing value
	Float64 DType = iota
	// String columns hold labels such as the security type
	String
	// SidRef columns hold a nullable pointer to another asset
	SidRef
)

func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case String:
		return "string"
	case SidRef:
		return "sid"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Column identifies one column of a point-in-time dataset.
// Fundamentals columns additionally carry the reporting dimension and period offset.
type Column struct {
	Dataset      string
	Name         string
	DType        DType
	Dimension    string
	PeriodOffset int
}

// Key returns a stable identifier, used as cache key and in rendered expressions
func (c Column) Key() string {
	if c.Dimension != "" {
		return fmt.Sprintf("%s[%s,%d].%s", c.Dataset, c.Dimension, c.PeriodOffset, c.Name)
	}
	return c.Dataset + "." + c.Name
}

func (c Column) String() string {
	return c.Key()
}

// IsFundamental reports whether the column belongs to a fundamentals slice
func (c Column) IsFundamental() bool {
	return c.Dataset == fundamentalsDataset
}

const (
	securitiesMasterDataset = "SecuritiesMaster"
	equityPricingDataset    = "EquityPricing"
	fundamentalsDataset     = "Fundamentals"
)

// SecuritiesMaster is the static reference dataset.
// PrimaryShareSid is null for primary shares; this is a vendor convention and is used as-is.
var SecuritiesMaster = struct {
	SecurityType2   Column
	PrimaryShareSid Column
}{
	SecurityType2:   Column{Dataset: securitiesMasterDataset, Name: "usstock_SecurityType2", DType: String},
	PrimaryShareSid: Column{Dataset: securitiesMasterDataset, Name: "usstock_PrimaryShareSid", DType: SidRef},
}

// EquityPricing holds adjusted daily bars
var EquityPricing = struct {
	Open   Column
	High   Column
	Low    Column
	Close  Column
	Volume Column
}{
	Open:   Column{Dataset: equityPricingDataset, Name: "open", DType: Float64},
	High:   Column{Dataset: equityPricingDataset, Name: "high", DType: Float64},
	Low:    Column{Dataset: equityPricingDataset, Name: "low", DType: Float64},
	Close:  Column{Dataset: equityPricingDataset, Name: "close", DType: Float64},
	Volume: Column{Dataset: equityPricingDataset, Name: "volume", DType: Float64},
}

// Reporting dimensions of the fundamentals dataset.
// AR* = as reported, MR* = most recent reported; Q quarterly, Y annual, T trailing twelve months.
var validDimensions = map[string]bool{
	"ARQ": true, "ARY": true, "ART": true,
	"MRQ": true, "MRY": true, "MRT": true,
}

// FundamentalsSlice is the fundamentals dataset pinned to one dimension and period offset
type FundamentalsSlice struct {
	Dimension    string
	PeriodOffset int

	MarketCap Column
	Revenue   Column
	NetInc    Column
	Equity    Column
}

// Fundamentals slices the fundamentals dataset.
// periodOffset 0 is the most recent report as of each date, -1 the one before, and so on.
func Fundamentals(dimension string, periodOffset int) (FundamentalsSlice, error) {
	dimension = strings.ToUpper(dimension)
	if !validDimensions[dimension] {
		return FundamentalsSlice{}, fmt.Errorf("%w: %q", ErrInvalidDimension, dimension)
	}
	if periodOffset > 0 {
		return FundamentalsSlice{}, fmt.Errorf("%w: %d", ErrInvalidPeriodOffset, periodOffset)
	}

	col := func(name string) Column {
		return Column{
			Dataset:      fundamentalsDataset,
			Name:         name,
			DType:        Float64,
			Dimension:    dimension,
			PeriodOffset: periodOffset,
		}
	}

	return FundamentalsSlice{
		Dimension:    dimension,
		PeriodOffset: periodOffset,
		MarketCap:    col("MARKETCAP"),
		Revenue:      col("REVENUE"),
		NetInc:       col("NETINC"),
		Equity:       col("EQUITY"),
	}, nil
}

// MustFundamentals is like Fundamentals but panics on invalid arguments
func MustFundamentals(dimension string, periodOffset int) FundamentalsSlice {
	s, err := Fundamentals(dimension, periodOffset)
	if err != nil {
		panic(err)
	}
	return s
}
