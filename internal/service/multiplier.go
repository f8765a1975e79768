package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"giftledger/internal/config"
)

// Multiplier 幸运礼物倍数，backCoin = 倍数 * 礼物单价
type Multiplier interface {
	Draw() int64
}

// FixedMultiplier 固定倍数，0 表示普通礼物没有返币
type FixedMultiplier int64

func (m FixedMultiplier) Draw() int64 { return int64(m) }

var ErrEmptyLuckTable = errors.New("幸运倍数表为空")

// LuckTable 按权重抽取倍数
type LuckTable struct {
	multiples []int64
	cumWeight []int
	total     int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLuckTable rng 为 nil 时使用全局随机源
func NewLuckTable(entries []config.LuckTableConfig, rng *rand.Rand) (*LuckTable, error) {
	t := &LuckTable{rng: rng}
	for _, e := range entries {
		if e.Weight < 0 || e.Multiple < 0 {
			return nil, fmt.Errorf("幸运倍数配置无效: multiple=%d weight=%d", e.Multiple, e.Weight)
		}
		if e.Weight == 0 {
			continue
		}
		t.total += e.Weight
		t.multiples = append(t.multiples, e.Multiple)
		t.cumWeight = append(t.cumWeight, t.total)
	}
	if t.total == 0 {
		return nil, ErrEmptyLuckTable
	}
	return t, nil
}

func (t *LuckTable) Draw() int64 {
	var n int
	if t.rng == nil {
		n = rand.IntN(t.total)
	} else {
		t.mu.Lock()
		n = t.rng.IntN(t.total)
		t.mu.Unlock()
	}
	for i, w := range t.cumWeight {
		if n < w {
			return t.multiples[i]
		}
	}
	return t.multiples[len(t.multiples)-1]
}

// NewMultiplier 配置了 luck_table 用抽奖，否则用固定倍数
func NewMultiplier(cfg config.GiftConfig) (Multiplier, error) {
	if len(cfg.LuckTable) == 0 {
		return FixedMultiplier(cfg.BonusMultiplier), nil
	}
	return NewLuckTable(cfg.LuckTable, nil)
}
