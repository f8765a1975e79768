package handler

import (
	"errors"
	"strconv"

	"giftledger/internal/ledger"
	"giftledger/internal/repository"
	"giftledger/internal/service"
	"giftledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	giftService    *service.GiftService
	accountService *service.AccountService
	wallService    *service.WallService
	logger         *zap.Logger
}

// NewHandler 创建处理器实例
func NewHandler(gift *service.GiftService, account *service.AccountService, wall *service.WallService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		giftService:    gift,
		accountService: account,
		wallService:    wall,
		logger:         logger.Named("Handler"),
	}
}

// writeError 按错误类型返回业务码
func (h *Handler) writeError(c *gin.Context, err error) {
	var te *ledger.TransferError
	if !errors.As(err, &te) {
		h.logger.Error("请求失败", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.ServerError(c, "服务器内部错误")
		return
	}
	switch te.Kind {
	case ledger.KindInsufficientFunds:
		response.BusinessError(c, response.CodeBalanceNotEnough, "余额不足")
	case ledger.KindLockTimeout:
		response.BusinessError(c, response.CodeLockTimeout, "系统繁忙，请稍后重试")
	case ledger.KindAccountNotFound:
		response.BusinessError(c, response.CodeAccountNotFound, "账户不存在")
	case ledger.KindInvalidRequest:
		response.BusinessError(c, response.CodeInvalidRequest, te.Error())
	case ledger.KindDuplicateRequest:
		response.BusinessError(c, response.CodeDuplicateRequest, "重复请求")
	case ledger.KindConfigurationError:
		response.BusinessError(c, response.CodeConfigError, "配置错误")
	default:
		h.logger.Error("送礼失败", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.BusinessError(c, response.CodeTransferFailed, "操作失败，请重试")
	}
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, balance)
}

// Recharge 充值接口（简化版，实际应该走支付渠道）
// POST /api/v1/account/recharge
func (h *Handler) Recharge(c *gin.Context) {
	var req service.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.accountService.Recharge(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, balance)
}

// ListBills 账单列表
// GET /api/v1/bill/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListBills(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	bills, total, err := h.accountService.ListBills(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Page(c, bills, total, page, pageSize)
}

// ============================================================
// 送礼相关接口
// ============================================================

// SendGift 送礼
// POST /api/v1/gift/send
func (h *Handler) SendGift(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	resp, err := h.giftService.Send(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, resp)
}

// GetGiftBill 礼物记录详情
// GET /api/v1/gift/bill?bill_no=xxx
func (h *Handler) GetGiftBill(c *gin.Context) {
	billNo := c.Query("bill_no")
	if billNo == "" {
		response.ParamError(c, "bill_no 不能为空")
		return
	}

	detail, err := h.giftService.GetBill(c.Request.Context(), billNo)
	if err != nil {
		if errors.Is(err, repository.ErrBillNotFound) {
			response.BusinessError(c, response.CodeBillNotFound, "礼物记录不存在")
			return
		}
		h.writeError(c, err)
		return
	}
	response.Success(c, detail)
}

// GetWall 礼物墙
// GET /api/v1/gift/wall?user_id=xxx
func (h *Handler) GetWall(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	rows, err := h.wallService.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "list": rows})
}
