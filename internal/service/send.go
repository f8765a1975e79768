package service

import (
	"context"
	"errors"
	"fmt"

	"giftledger/internal/distribution"
	"giftledger/internal/ledger"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/pkg/fixed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SendRequest struct {
	RequestID   string `json:"request_id" binding:"required,max=64"`
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	ToUID       int64  `json:"to_uid" binding:"required,gt=0"`
	GiftID      int64  `json:"gift_id" binding:"required,gt=0"`
	GiftName    string `json:"gift_name" binding:"required,max=64"`
	GiftNumber  int    `json:"gift_number" binding:"required,gte=1"`
	NumberGroup int    `json:"number_group" binding:"omitempty,gte=1"`
	UnitCoin    string `json:"unit_coin" binding:"required"` // 十进制字符串，避免 float 精度
	RoomID      int64  `json:"room_id"`
}

type SendResponse struct {
	BillID    int64  `json:"bill_id"`
	BillNo    string `json:"bill_no"`
	GiftCoin  string `json:"gift_coin"`
	GiftMoney string `json:"gift_money"`
	Multiple  int64  `json:"multiple"`
	BackCoin  string `json:"back_coin"`
	Balance   string `json:"balance,omitempty"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message,omitempty"`
}

// Send 对外的送礼入口
//
// 【幂等】先按 request_id 查礼物记录，存在就直接返回；
// 两个相同 request_id 的请求同时进来时，由 gift_bill.request_id 唯一索引兜底，
// 后提交的那个整体回滚，这里再查一次返回先提交的结果。
func (s *GiftService) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	existing, err := s.giftBillRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, ledger.Wrap("gift.dedup", err)
	}
	if existing != nil {
		s.metrics.ObserveTransfer(metrics.ResultDuplicate, "", 0)
		return duplicateResponse(existing), nil
	}

	unitCoin, err := fixed.Parse(req.UnitCoin)
	if err != nil || unitCoin.IsNegative() {
		return nil, &ledger.TransferError{Kind: ledger.KindInvalidRequest, Op: "gift.send", Err: fmt.Errorf("礼物单价无效: %q", req.UnitCoin)}
	}
	group := req.NumberGroup
	if group == 0 {
		group = 1
	}
	cost := fixed.Multiply(unitCoin, decimal.NewFromInt(int64(req.GiftNumber)*int64(group)), fixed.CoinScale)

	stakeholders, err := s.ResolveStakeholders(ctx, req.RoomID, req.ToUID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAccounts(ctx, req.ToUID, stakeholders); err != nil {
		return nil, err
	}

	res, err := s.Transfer(ctx, &TransferRequest{
		RequestID:    req.RequestID,
		SenderID:     req.UserID,
		RecipientID:  req.ToUID,
		Gift:         GiftInfo{ID: req.GiftID, Name: req.GiftName},
		GiftNumber:   req.GiftNumber,
		NumberGroup:  group,
		Cost:         cost,
		UnitCoin:     unitCoin,
		RoomID:       req.RoomID,
		Stakeholders: stakeholders,
	})
	if err != nil {
		if ledger.KindOf(err) == ledger.KindDuplicateRequest {
			if bill, qerr := s.giftBillRepo.GetByRequestID(ctx, req.RequestID); qerr == nil && bill != nil {
				return duplicateResponse(bill), nil
			}
		}
		return nil, err
	}

	return &SendResponse{
		BillID:    res.BillID,
		BillNo:    res.BillNo,
		GiftCoin:  res.GiftCoin.String(),
		GiftMoney: res.GiftMoney.StringFixed(fixed.MoneyScale),
		Multiple:  res.Multiple,
		BackCoin:  res.BackCoin.String(),
		Balance:   res.Balance.String(),
		Message:   "送礼成功",
	}, nil
}

func duplicateResponse(bill *model.GiftBill) *SendResponse {
	return &SendResponse{
		BillID:    bill.ID,
		BillNo:    bill.BillNo,
		GiftCoin:  bill.GiftCoin.String(),
		GiftMoney: bill.GiftMoney.StringFixed(fixed.MoneyScale),
		Multiple:  bill.Multiple,
		BackCoin:  bill.BackCoin.String(),
		Duplicate: true,
		Message:   "重复请求，返回已有记录",
	}
}

// ResolveStakeholders 按房间解析分成对象
//
// 房主、主播来自房间记录，不在分成引擎里写死；不在房间内送礼只有收礼人分成。
// 比例配置解析失败按 ConfigurationError 处理：记录日志，跳过该分成对象。
func (s *GiftService) ResolveStakeholders(ctx context.Context, roomID, recipientID int64) ([]distribution.Stakeholder, error) {
	shares := s.cfg.Gift.Shares
	type candidate struct {
		uid   int64
		raw   string
		label string
	}
	var candidates []candidate
	if roomID > 0 {
		room, err := s.roomRepo.GetByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return nil, &ledger.TransferError{Kind: ledger.KindInvalidRequest, Op: "gift.room", Err: err}
			}
			return nil, ledger.Wrap("gift.room", err)
		}
		candidates = append(candidates,
			candidate{room.OwnerUID, shares.Owner, distribution.LabelOwner},
			candidate{room.HostUID, shares.Host, distribution.LabelHost},
		)
	}
	candidates = append(candidates, candidate{recipientID, shares.Recipient, distribution.LabelRecipient})

	out := make([]distribution.Stakeholder, 0, len(candidates))
	for _, c := range candidates {
		if c.uid <= 0 {
			continue
		}
		percent, err := fixed.Parse(c.raw)
		if err != nil {
			s.logger.Warn("分成比例配置无效，跳过",
				zap.String("label", c.label),
				zap.String("value", c.raw),
				zap.Error(&ledger.TransferError{Kind: ledger.KindConfigurationError, Op: "gift.shares", Err: err}))
			continue
		}
		if percent.IsZero() {
			continue
		}
		out = append(out, distribution.Stakeholder{UserID: c.uid, Percent: percent, Label: c.label})
	}
	return out, nil
}

// ensureAccounts 收礼人和分成对象没有账户时先建空账户，送礼人必须已有账户
func (s *GiftService) ensureAccounts(ctx context.Context, recipientID int64, stakeholders []distribution.Stakeholder) error {
	seen := map[int64]bool{}
	uids := []int64{recipientID}
	for _, st := range stakeholders {
		uids = append(uids, st.UserID)
	}
	for _, uid := range uids {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err := s.accountRepo.GetOrCreate(ctx, uid); err != nil {
			return ledger.Wrap("gift.ensure_account", err)
		}
	}
	return nil
}

// GiftBillDetail 礼物记录和它派生的账单
type GiftBillDetail struct {
	Bill    *model.GiftBill   `json:"bill"`
	Entries []*model.UserBill `json:"entries"`
}

func (s *GiftService) GetBill(ctx context.Context, billNo string) (*GiftBillDetail, error) {
	bill, err := s.giftBillRepo.GetByBillNo(ctx, billNo)
	if err != nil {
		return nil, err
	}
	entries, err := s.userBillRepo.ListByLinkID(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	return &GiftBillDetail{Bill: bill, Entries: entries}, nil
}
