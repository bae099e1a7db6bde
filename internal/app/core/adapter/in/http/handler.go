package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

// Handler 將 HTTP 請求轉成 CoreUseCase 呼叫。
// 欄位格式驗證在這一層完成，核心只會收到乾淨的輸入。
type Handler struct {
	core     *usecase.CoreUseCase
	validIDs map[int64]struct{} // 啟動時自後端載入的合法帳戶集合
	log      *zap.Logger
}

func NewHandler(core *usecase.CoreUseCase, validIDs map[int64]struct{}, log *zap.Logger) *Handler {
	return &Handler{
		core:     core,
		validIDs: validIDs,
		log:      log,
	}
}

// transactionRequest POST body
// 使用指標以分辨「缺漏欄位」與零值
type transactionRequest struct {
	Amount      *int64  `json:"amount"`
	Direction   string  `json:"direction"`
	Description *string `json:"description"`
}

type transactionResponse struct {
	Balance int64 `json:"balance"`
	Limit   int64 `json:"limit"`
}

type statementBalance struct {
	Total         int64     `json:"total"`
	Limit         int64     `json:"limit"`
	StatementDate time.Time `json:"statementDate"`
}

type statementTransaction struct {
	Amount      int64     `json:"amount"`
	Direction   string    `json:"direction"`
	Description string    `json:"description"`
	PerformedAt time.Time `json:"performedAt"`
}

type statementResponse struct {
	Balance            statementBalance       `json:"balance"`
	RecentTransactions []statementTransaction `json:"recentTransactions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PostTransaction POST /accounts/:id/transactions
func (h *Handler) PostTransaction(c *fiber.Ctx) error {
	accountID, ok := h.accountID(c)
	if !ok {
		return respondError(c, fiber.StatusNotFound, "account not found")
	}

	var req transactionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusUnprocessableEntity, "malformed request body")
	}

	if req.Amount == nil || *req.Amount < 0 {
		return respondError(c, fiber.StatusUnprocessableEntity, "amount must be a non-negative integer")
	}

	dir, err := domain.ParseDirection(req.Direction)
	if err != nil {
		return respondError(c, fiber.StatusUnprocessableEntity, "direction must be \"c\" or \"d\"")
	}

	if req.Description == nil || domain.ValidateDescription(*req.Description) != nil {
		return respondError(c, fiber.StatusUnprocessableEntity, "description must be 1 to 10 characters")
	}

	acc, err := h.core.PostTransaction(c.UserContext(), accountID, dir, *req.Amount, *req.Description)
	if err != nil {
		return h.respondEngineError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transactionResponse{
		Balance: acc.Balance,
		Limit:   acc.Limit,
	})
}

// GetStatement GET /accounts/:id/statement
func (h *Handler) GetStatement(c *fiber.Ctx) error {
	accountID, ok := h.accountID(c)
	if !ok {
		return respondError(c, fiber.StatusNotFound, "account not found")
	}

	statement, err := h.core.GetStatement(c.UserContext(), accountID)
	if err != nil {
		return h.respondEngineError(c, err)
	}

	trans := make([]statementTransaction, 0, len(statement.Transactions))
	for _, tran := range statement.Transactions {
		trans = append(trans, statementTransaction{
			Amount:      tran.Amount,
			Direction:   tran.Direction.String(),
			Description: tran.Description,
			PerformedAt: tran.PerformedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(statementResponse{
		Balance: statementBalance{
			Total:         statement.Balance,
			Limit:         statement.Limit,
			StatementDate: statement.GeneratedAt,
		},
		RecentTransactions: trans,
	})
}

// accountID 解析路徑參數並檢查是否落在已載入的帳戶集合內
func (h *Handler) accountID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return 0, false
	}
	if _, ok := h.validIDs[int64(id)]; !ok {
		return 0, false
	}
	return int64(id), true
}

// respondEngineError 將引擎結果對應到狀態碼
// 業務失敗 (404/422) 與基礎設施失敗 (500) 分開回報
func (h *Handler) respondEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return respondError(c, fiber.StatusNotFound, "account not found")
	case errors.Is(err, domain.ErrInsufficientLimit):
		return respondError(c, fiber.StatusUnprocessableEntity, "insufficient limit")
	case errors.Is(err, domain.ErrAmountMustBePositive),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrInvalidDescription):
		return respondError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("ledger engine failure",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return respondError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(errorResponse{Error: message})
}
