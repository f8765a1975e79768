package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/infrastructure/database/dbtest"
	"giftledger/internal/infrastructure/lock"
	"giftledger/internal/ledger"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/internal/service"
	"giftledger/pkg/fixed"
	"giftledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiResponse struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func newRouter(t *testing.T) (*gin.Engine, *repository.AccountRepository) {
	t.Helper()
	db := dbtest.Open(t)
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{GiftSettled: "gift_settled", Notice: "gift_notice"}},
		Gift: config.GiftConfig{
			ExchangeRate: "0.1",
			Shares:       config.ShareConfig{Owner: "0.05", Host: "0.03", Recipient: "0.02"},
		},
	}
	accounts := repository.NewAccountRepository(db)
	lg := ledger.New(db, lock.NewLocalLocker(), accounts, repository.NewUserBillRepository(db), time.Second, nil, zap.NewNop())
	h := NewHandler(
		service.NewGiftService(db, cfg, lg, service.FixedMultiplier(0), nil, nil, zap.NewNop()),
		service.NewAccountService(db, lg, zap.NewNop()),
		service.NewWallService(db),
		zap.NewNop(),
	)
	return SetupRouter(h, metrics.New(), zap.NewNop()), accounts
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestSendGiftFlow(t *testing.T) {
	r, accounts := newRouter(t)
	require.NoError(t, accounts.Create(context.Background(), &model.Account{UserID: 1, Coin: fixed.MustParse("100")}))

	_, resp := do(t, r, http.MethodPost, "/api/v1/gift/send", gin.H{
		"request_id": "abc", "user_id": 1, "to_uid": 2, "gift_id": 9, "gift_name": "rose", "gift_number": 2, "unit_coin": "30",
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	var sent service.SendResponse
	require.NoError(t, json.Unmarshal(resp.Data, &sent))
	assert.Equal(t, "60", sent.GiftCoin)
	assert.Equal(t, "40", sent.Balance)

	_, resp = do(t, r, http.MethodGet, "/api/v1/account/balance?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var bal service.BalanceResponse
	require.NoError(t, json.Unmarshal(resp.Data, &bal))
	assert.Equal(t, "40", bal.Coin)

	_, resp = do(t, r, http.MethodGet, "/api/v1/gift/bill?bill_no="+sent.BillNo, nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	_, resp = do(t, r, http.MethodGet, "/api/v1/gift/wall?user_id=2", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Contains(t, string(resp.Data), `"gift_number":2`)

	_, resp = do(t, r, http.MethodGet, "/api/v1/bill/list?user_id=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Contains(t, string(resp.Data), `"total":1`)

	// 余额不足
	_, resp = do(t, r, http.MethodPost, "/api/v1/gift/send", gin.H{
		"request_id": "def", "user_id": 1, "to_uid": 2, "gift_id": 9, "gift_name": "rose", "gift_number": 1, "unit_coin": "41",
	})
	assert.Equal(t, response.CodeBalanceNotEnough, resp.Code)
}

func TestErrorCodes(t *testing.T) {
	r, _ := newRouter(t)

	_, resp := do(t, r, http.MethodPost, "/api/v1/gift/send", gin.H{"user_id": 1})
	assert.Equal(t, response.CodeParamError, resp.Code)

	_, resp = do(t, r, http.MethodPost, "/api/v1/gift/send", gin.H{
		"request_id": "x", "user_id": 404, "to_uid": 2, "gift_id": 9, "gift_name": "rose", "gift_number": 1, "unit_coin": "1",
	})
	assert.Equal(t, response.CodeAccountNotFound, resp.Code)

	_, resp = do(t, r, http.MethodPost, "/api/v1/gift/send", gin.H{
		"request_id": "y", "user_id": 1, "to_uid": 2, "gift_id": 9, "gift_name": "rose", "gift_number": 1, "unit_coin": "abc",
	})
	assert.Equal(t, response.CodeInvalidRequest, resp.Code)

	_, resp = do(t, r, http.MethodGet, "/api/v1/gift/bill?bill_no=nope", nil)
	assert.Equal(t, response.CodeBillNotFound, resp.Code)

	_, resp = do(t, r, http.MethodGet, "/api/v1/account/balance?user_id=abc", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	_, resp = do(t, r, http.MethodGet, "/api/v1/bill/list?user_id=1&page_size=1000", nil)
	assert.Equal(t, response.CodeInvalidRequest, resp.Code)
}

func TestRechargeAndInfraRoutes(t *testing.T) {
	r, _ := newRouter(t)

	_, resp := do(t, r, http.MethodPost, "/api/v1/account/recharge", gin.H{"user_id": 3, "amount": "12.5"})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	assert.NotEmpty(t, resp.RequestID)
	assert.Contains(t, string(resp.Data), `"coin":"12.5"`)

	rec, _ := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gift_lock_wait_seconds")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/gift/send", nil)
	req.Header.Set(HeaderRequestID, "trace-1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "trace-1", rec.Header().Get(HeaderRequestID))
}
