package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/mysql"
	"github.com/JoeShih716/go-credit-ledger/pkg/pool"
)

// statementWindow 對帳單可見的交易筆數
// 查詢時多抓一筆: 帳戶可能帶有一筆不應出現在歷史中的種子紀錄
const statementWindow = 10

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID      int64 `gorm:"primaryKey"`
	Balance int64
	Limit   int64 `gorm:"column:limit"` // MySQL 保留字，GORM 產生 SQL 時會自動加反引號
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表 (append-only)
type sqlTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	RefID         []byte    `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.RefID
	AccountID     int64     `gorm:"index"`
	Amount        int64
	Direction     string    `gorm:"type:char(1)"`
	Description   string    `gorm:"size:10"`
	PerformedAt   time.Time
	LimitAtTime   int64     `gorm:"column:limit_at_time"`   // 套用當下的額度快照
	BalanceAtTime int64     `gorm:"column:balance_at_time"` // 套用當下的餘額快照
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// MySQLLedger 以 MySQL 為後端的帳本。
// 每個操作都向資源池借一條 Session，離開時歸還 (defer 保證所有路徑)。
// 並發正確性不依賴應用層鎖: 餘額更新是單一條件式 UPDATE，
// 由資料庫在 Row Lock 上序列化同帳戶的競爭者。
type MySQLLedger struct {
	pool *pool.Pool[*mysql.Client]
}

func NewMySQLLedger(p *pool.Pool[*mysql.Client]) *MySQLLedger {
	return &MySQLLedger{
		pool: p,
	}
}

// PostTransaction 套用一筆交易
//
// 核心機制: 不做「讀出餘額、計算、寫回」(並發下會 Race)，
// 而是發出一條原子的條件式變更:
//
//	UPDATE accounts SET balance = balance + delta
//	WHERE id = ? AND balance + delta >= -`limit`
//
// 謂詞由資料庫在同一步內評估，兩筆並發扣帳不可能都看到健康餘額
// 然後一起透支。交易紀錄與餘額快照在同一個 DB Transaction 內寫入，
// 歷史永遠與餘額軌跡一致。
//
// RowsAffected == 0 時在同一個 Transaction 內補查帳戶是否存在，
// 以區分 ErrAccountNotFound 與 ErrInsufficientLimit。
func (ledger *MySQLLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Account, error) {
	client, err := ledger.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer ledger.pool.Release(client)

	var result domain.Account

	err = client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		delta := tran.Direction.Delta(tran.Amount)

		res := tx.Model(&sqlAccount{}).
			Where("id = ? AND balance + ? >= -`limit`", tran.AccountID, delta).
			UpdateColumn("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			// 謂詞沒中: 帳戶不存在或額度不足，分開回報
			var count int64
			if err := tx.Model(&sqlAccount{}).Where("id = ?", tran.AccountID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrAccountNotFound
			}
			return domain.ErrInsufficientLimit
		}

		var acc sqlAccount
		if err := tx.First(&acc, tran.AccountID).Error; err != nil {
			return err
		}

		record := sqlTransaction{
			RefID:         tran.RefID[:],
			AccountID:     tran.AccountID,
			Amount:        tran.Amount,
			Direction:     tran.Direction.String(),
			Description:   tran.Description,
			PerformedAt:   tran.PerformedAt,
			LimitAtTime:   acc.Limit,
			BalanceAtTime: acc.Balance,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		result = domain.Account{ID: acc.ID, Balance: acc.Balance, Limit: acc.Limit}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrInsufficientLimit) {
			return nil, err
		}
		// 基礎設施錯誤與業務錯誤分開往上報，不折疊成同一類
		return nil, fmt.Errorf("post transaction: %w", err)
	}

	return &result, nil
}

// GetStatement 取得帳戶對帳單
// 餘額與歷史在同一個 Transaction 內讀取，避免兩者之間插入新交易
func (ledger *MySQLLedger) GetStatement(ctx context.Context, accountID int64) (*domain.Statement, error) {
	client, err := ledger.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer ledger.pool.Release(client)

	var statement domain.Statement

	err = client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc sqlAccount
		if err := tx.First(&acc, accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}

		var rows []sqlTransaction
		if err := tx.Where("account_id = ?", accountID).
			Order("id DESC").
			Limit(statementWindow + 1).
			Find(&rows).Error; err != nil {
			return err
		}

		// 超出可見視窗代表抓到了種子紀錄，丟掉最舊的一筆
		if len(rows) > statementWindow {
			rows = rows[:statementWindow]
		}

		trans := make([]domain.Transaction, 0, len(rows))
		for _, row := range rows {
			dir, err := domain.ParseDirection(row.Direction)
			if err != nil {
				return fmt.Errorf("corrupt direction %q on transaction %d: %w", row.Direction, row.ID, err)
			}
			trans = append(trans, domain.Transaction{
				ID:            row.ID,
				AccountID:     row.AccountID,
				Amount:        row.Amount,
				Direction:     dir,
				Description:   row.Description,
				PerformedAt:   row.PerformedAt,
				BalanceAfter:  row.BalanceAtTime,
				LimitAfter:    row.LimitAtTime,
			})
		}

		statement = domain.Statement{
			Balance:      acc.Balance,
			Limit:        acc.Limit,
			GeneratedAt:  time.Now().UTC(),
			Transactions: trans,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get statement: %w", err)
	}

	return &statement, nil
}

// LoadAllAccounts 載入系統所有帳戶資料
// 啟動時用來推導合法帳戶範圍，不在程式碼裡寫死 ID 邊界
func (ledger *MySQLLedger) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	client, err := ledger.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer ledger.pool.Release(client)

	var rows []sqlAccount
	if err := client.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	accounts := make(map[int64]*domain.Account, len(rows))
	for _, row := range rows {
		accounts[row.ID] = domain.NewAccount(row.ID, row.Balance, row.Limit)
	}
	return accounts, nil
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
