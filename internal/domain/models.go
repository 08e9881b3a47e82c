package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meter is one loaded extraction file: a row of the meter dimension.
type Meter struct {
	ID             int64  `db:"id" json:"id"`
	Description    string `db:"description" json:"description"`
	UnitID         int64  `db:"unit_id" json:"unit_id"`
	CommodityID    int64  `db:"commodity_id" json:"commodity_id"`
	SourceSystemID int64  `db:"source_system_id" json:"source_system_id"`
	ReadingTypeID  int64  `db:"reading_type_id" json:"reading_type_id"`
}

// MeterDetail is a meter with its dimension names resolved.
type MeterDetail struct {
	Meter
	Unit         string `db:"unit" json:"unit"`
	Commodity    string `db:"commodity" json:"commodity"`
	SourceSystem string `db:"source_system" json:"source_system"`
	ReadingType  string `db:"reading_type" json:"reading_type"`
}

type Reading struct {
	MeterID      int64               `db:"meter_id" json:"meter_id"`
	TimeStampUTC time.Time           `db:"time_stamp_utc" json:"time_stamp_utc"`
	Reading      decimal.NullDecimal `db:"reading" json:"reading"`
}

// Dimensions holds the surrogate keys an extraction header resolves to.
type Dimensions struct {
	UnitID         int64
	CommodityID    int64
	SourceSystemID int64
	ReadingTypeID  int64
}
