package domain

import (
	"time"

	"github.com/google/uuid"
)

// DescriptionMaxLen 交易描述長度上限
const (
	DescriptionMinLen = 1
	DescriptionMaxLen = 10
)

// Direction 交易方向
// 為了節省記憶體，使用 uint8
type Direction uint8

const (
	// 入帳
	DirectionCredit Direction = 1
	// 扣帳
	DirectionDebit Direction = 2
)

// ParseDirection 解析外部傳入的方向代碼 ("c" / "d")
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "c":
		return DirectionCredit, nil
	case "d":
		return DirectionDebit, nil
	default:
		return 0, ErrInvalidDirection
	}
}

// String 回傳方向代碼，與 API / 資料表使用相同表示
func (d Direction) String() string {
	switch d {
	case DirectionCredit:
		return "c"
	case DirectionDebit:
		return "d"
	default:
		return "?"
	}
}

// Delta 回傳套用在餘額上的有號變化量
func (d Direction) Delta(amount int64) int64 {
	if d == DirectionDebit {
		return -amount
	}
	return amount
}

// Transaction 交易紀錄 (append-only，建立後不再變動)
// 注意欄位排序以避免 Padding
type Transaction struct {
	// ID: 由儲存層分配的遞增序號，決定歷史排序
	ID int64
	// AccountID: 所屬帳戶
	AccountID int64
	// Amount: 金額 (恆為正數，方向由 Direction 表示)
	Amount int64
	// BalanceAfter, LimitAfter: 交易套用當下的餘額與額度快照
	BalanceAfter int64
	LimitAfter   int64
	// PerformedAt: 交易時間
	PerformedAt time.Time
	// Description: 短描述 (1~10 字元)
	Description string
	// RefID: 外部追蹤號 (UUID)，WAL 重放去重使用
	RefID uuid.UUID
	// Direction: 放到最後面，利用 Padding 空間
	Direction Direction
}

// ValidateDescription 檢查描述長度是否落在允許範圍
func ValidateDescription(s string) error {
	if len(s) < DescriptionMinLen || len(s) > DescriptionMaxLen {
		return ErrInvalidDescription
	}
	return nil
}

// Statement 對帳單: 當前餘額/額度與最近的交易 (最新在前)
type Statement struct {
	Balance      int64
	Limit        int64
	GeneratedAt  time.Time
	Transactions []Transaction
}
