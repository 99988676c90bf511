package model

import (
	"gorm.io/datatypes"
)

// TradeModel is one row of the append-only trade ledger. The table keeps the
// original flat layout: every execution, delivery leg and funding payment is
// one row, deduplicated on (exec_id, account).
type TradeModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	ExecID       string         `gorm:"column:exec_id;uniqueIndex:idx_exec_account,priority:1"`
	Account      int64          `gorm:"column:account;uniqueIndex:idx_exec_account,priority:2"`
	EMI          string         `gorm:"column:emi;index"`
	Refer        string         `gorm:"column:refer"`
	Currency     string         `gorm:"column:currency"`
	Symbol       string         `gorm:"column:symbol;index"`
	Ticker       string         `gorm:"column:ticker"`
	Category     string         `gorm:"column:category"`
	Market       string         `gorm:"column:market;index"`
	Side         string         `gorm:"column:side"`
	Qty          float64        `gorm:"column:qty"`
	LeavesQty    float64        `gorm:"column:leaves_qty"`
	Price        float64        `gorm:"column:price"`
	TradePrice   float64        `gorm:"column:trade_price"`
	Sumreal      float64        `gorm:"column:sumreal"`
	Commission   float64        `gorm:"column:commission"`
	ClientID     int64          `gorm:"column:client_id"`
	TransactTime int64          `gorm:"column:transact_time"` // unix micro UTC
	RawData      datatypes.JSON `gorm:"column:raw_data;type:TEXT"`
}

func (TradeModel) TableName() string { return "coins" }

// SideFund marks funding rows; they never count toward net position.
const SideFund = "Fund"

// PositionRow is the aggregate produced by the boot-time reconstruction
// query, one per (emi, symbol).
type PositionRow struct {
	EMI        string  `gorm:"column:emi"`
	Symbol     string  `gorm:"column:symbol"`
	Market     string  `gorm:"column:market"`
	Position   float64 `gorm:"column:position"`
	Volume     float64 `gorm:"column:volume"`
	Sumreal    float64 `gorm:"column:sumreal"`
	Commission float64 `gorm:"column:commission"`
}
