package httpapi

import (
	"net/http"
	"strconv"

	"license-commerce/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GetWallet returns the caller's balance and latest journal rows.
func (h Handlers) GetWallet(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	sum, err := h.Wallet.GetWalletSummary(c.Request.Context(), who.tenantID, who.userID, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ListTransactions returns the caller's journal, newest first.
func (h Handlers) ListTransactions(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	txs, err := h.Wallet.GetTransactionHistory(c.Request.Context(), who.tenantID, who.userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// --- Admin ---

type amountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OrderID     string          `json:"order_id"`
}

type creditLimitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

// AdminGetWallet returns the summary of a customer wallet in the admin's tenant.
func (h Handlers) AdminGetWallet(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	sum, err := h.Wallet.GetWalletSummary(c.Request.Context(), who.tenantID, c.Param("user_id"), 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) AdminDeposit(c *gin.Context) {
	h.adminAmount(c, "deposit", func(who caller, userID string, req amountRequest) (wallet.Transaction, error) {
		return h.Wallet.AddDeposit(c.Request.Context(), who.tenantID, userID, req.Amount, req.Description, who.userID)
	})
}

func (h Handlers) AdminCreditPayment(c *gin.Context) {
	h.adminAmount(c, "credit_payment", func(who caller, userID string, req amountRequest) (wallet.Transaction, error) {
		return h.Wallet.RecordCreditPayment(c.Request.Context(), who.tenantID, userID, req.Amount, req.Description, who.userID)
	})
}

func (h Handlers) AdminRefund(c *gin.Context) {
	h.adminAmount(c, "refund", func(who caller, userID string, req amountRequest) (wallet.Transaction, error) {
		return h.Wallet.Refund(c.Request.Context(), who.tenantID, userID, req.Amount, req.OrderID, req.Description, who.userID)
	})
}

func (h Handlers) adminAmount(c *gin.Context, action string, do func(caller, string, amountRequest) (wallet.Transaction, error)) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	userID := c.Param("user_id")
	tx, err := do(who, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.auditWallet(c, who, userID, action, gin.H{
		"amount":         tx.Amount.StringFixed(2),
		"transaction_id": tx.ID,
		"order_id":       tx.OrderID,
	})
	c.JSON(http.StatusCreated, tx)
}

func (h Handlers) AdminSetCreditLimit(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req creditLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	userID := c.Param("user_id")
	tx, err := h.Wallet.SetCreditLimit(c.Request.Context(), who.tenantID, userID, req.CreditLimit, who.userID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.auditWallet(c, who, userID, "credit_limit", gin.H{"credit_limit": tx.Amount.StringFixed(2), "transaction_id": tx.ID})
	c.JSON(http.StatusCreated, tx)
}

func (h Handlers) AdminDeactivate(c *gin.Context) { h.setActive(c, false) }
func (h Handlers) AdminActivate(c *gin.Context)   { h.setActive(c, true) }

func (h Handlers) setActive(c *gin.Context, active bool) {
	who, ok := identity(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	w, err := h.Wallet.SetActive(c.Request.Context(), who.tenantID, userID, active, who.userID)
	if err != nil {
		respondError(c, err)
		return
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	h.auditWallet(c, who, userID, action, nil)
	c.JSON(http.StatusOK, w)
}

// AdminReconcile compares a stored wallet with the fold of its journal.
func (h Handlers) AdminReconcile(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	rec, err := h.Wallet.Reconcile(c.Request.Context(), who.tenantID, c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) auditWallet(c *gin.Context, who caller, subject, action string, details any) {
	if h.Audit == nil {
		return
	}
	h.Audit.LogWalletAction(c.Request.Context(), who.tenantID, who.actor(c.ClientIP()), subject, action, details)
}
