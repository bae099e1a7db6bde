package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

// statementWindow 對帳單可見的交易筆數
const statementWindow = 10

// MutexLedger 是一個以 Mutex 保護的 in-memory 帳本。
// 作為 mysql 帳本的替代後端 (開發 / 測試)，實作同一個 usecase.Ledger 介面。
//
// 結構:
//
//	accounts: 帳戶資料 Map
//	history: 每個帳戶的交易紀錄 (append 順序 = 套用順序)
//	processed: 已處理過的交易 Map (RefID 去重，WAL 重放冪等)
//	wal: Write-Ahead Log 實例 (可為 nil，表示不做持久化)
type MutexLedger struct {
	mu        sync.RWMutex
	accounts  map[int64]*domain.Account
	history   map[int64][]domain.Transaction
	processed map[uuid.UUID]time.Time
	wal       *wal.WAL
	nextID    int64
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	accounts: 初始帳戶資料 Map (外部種子)
//	w: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(accounts map[int64]*domain.Account, w *wal.WAL) (*MutexLedger, error) {
	ledger := &MutexLedger{
		accounts:  make(map[int64]*domain.Account, len(accounts)),
		history:   make(map[int64][]domain.Transaction),
		processed: make(map[uuid.UUID]time.Time),
		wal:       w,
	}
	for id, acc := range accounts {
		cp := *acc
		ledger.accounts[id] = &cp
	}

	if err := ledger.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMutexLedger 呼叫，無需 Lock (單執行緒)
func (m *MutexLedger) recoverFromWAL() error {
	if m.wal == nil {
		return nil
	}

	return m.wal.ReadAll(func(jsonRaw []byte) error {
		var tran domain.Transaction
		if err := json.Unmarshal(jsonRaw, &tran); err != nil {
			return err
		}
		// WAL 只記錄已通過檢查的交易，重放時必定成功；
		// RefID 去重讓重複紀錄冪等
		if _, ok := m.processed[tran.RefID]; ok {
			return nil
		}
		return m.apply(&tran)
	})
}

// PostTransaction 套用一筆交易，回傳套用後的帳戶快照
//
// 順序: 先在鎖內完成業務檢查，確定會成功才寫 WAL，最後才變更記憶體狀態。
// 因此 WAL 裡不會有失敗交易，重放不需要重跑業務判斷。
func (m *MutexLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processed[tran.RefID]; ok {
		// 已處理過的交易: 冪等，回傳當前快照
		acc := m.accounts[tran.AccountID]
		if acc == nil {
			return nil, domain.ErrAccountNotFound
		}
		snapshot := *acc
		return &snapshot, nil
	}

	acc, ok := m.accounts[tran.AccountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	// 先在拷貝上驗證，確保失敗時不留任何半套狀態
	candidate := *acc
	if err := candidate.Apply(tran.Direction, tran.Amount); err != nil {
		return nil, err
	}

	record := *tran
	record.BalanceAfter = candidate.Balance
	record.LimitAfter = candidate.Limit

	if m.wal != nil {
		if err := m.wal.Append(&record); err != nil {
			return nil, domain.ErrWALWriteFailed
		}
	}

	if err := m.apply(&record); err != nil {
		return nil, err
	}

	snapshot := *m.accounts[tran.AccountID]
	return &snapshot, nil
}

// apply 將一筆已驗證的交易寫入記憶體狀態 (呼叫端持有鎖或單執行緒)
func (m *MutexLedger) apply(tran *domain.Transaction) error {
	acc, ok := m.accounts[tran.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if err := acc.Apply(tran.Direction, tran.Amount); err != nil {
		return err
	}

	m.nextID++
	record := *tran
	record.ID = m.nextID
	record.BalanceAfter = acc.Balance
	record.LimitAfter = acc.Limit

	m.history[tran.AccountID] = append(m.history[tran.AccountID], record)
	m.processed[tran.RefID] = time.Now()
	return nil
}

// GetStatement 取得帳戶對帳單 (最近 statementWindow 筆，最新在前)
func (m *MutexLedger) GetStatement(ctx context.Context, accountID int64) (*domain.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	all := m.history[accountID]
	n := len(all)
	if n > statementWindow {
		n = statementWindow
	}

	trans := make([]domain.Transaction, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		trans = append(trans, all[i])
	}

	return &domain.Statement{
		Balance:      acc.Balance,
		Limit:        acc.Limit,
		GeneratedAt:  time.Now().UTC(),
		Transactions: trans,
	}, nil
}

// LoadAllAccounts 載入系統所有帳戶資料 (回傳拷貝，避免外部改寫內部狀態)
func (m *MutexLedger) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make(map[int64]*domain.Account, len(m.accounts))
	for id, acc := range m.accounts {
		cp := *acc
		accounts[id] = &cp
	}
	return accounts, nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
