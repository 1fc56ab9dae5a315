// Package balance содержит чистые функции расчёта балансов счёта.
// Пакет не имеет побочных эффектов и работает со снимком данных счёта.
package balance

import (
	"errors"
	"sort"

	"github.com/okoshkina/benefit-system/internal/model"
)

// ErrConfigurationMissing возвращается, если активная ставка пособия не настроена.
// Балансы при этом считаются нулевыми, чтобы не ломать оформление заказов.
var ErrConfigurationMissing = errors.New("no active rate configured")

// AvailableVoucherCap ограничивает число ваучеров, учитываемых в доступном балансе.
const AvailableVoucherCap = 2

// RateConfig содержит действующие ставки пособия в копейках.
type RateConfig struct {
	PerPersonCents      int64
	InfantModifierCents int64

	GoFreshEnabled     bool
	GoFreshSmallMax    int
	GoFreshMediumMax   int
	GoFreshSmallCents  int64
	GoFreshMediumCents int64
	GoFreshLargeCents  int64
}

// Snapshot представляет снимок счёта для расчёта балансов.
// PauseGateActive означает, что в программе участника сейчас действует
// пауза с множителем больше 1, и доступный баланс считается только по
// помеченным ваучерам.
type Snapshot struct {
	Participant     model.Participant
	Account         model.Account
	Vouchers        []model.Voucher
	PauseGateActive bool
}

// BaseBalance возвращает базовую ставку счёта: размер домохозяйства,
// умноженный на ставку на человека.
func BaseBalance(p model.Participant, cfg RateConfig) int64 {
	return int64(p.HouseholdSize()) * cfg.PerPersonCents
}

// VoucherAmount возвращает базовый номинал одного ваучера без множителя паузы.
func VoucherAmount(p model.Participant, cfg RateConfig) int64 {
	return BaseBalance(p, cfg) + int64(p.Infants)*cfg.InfantModifierCents
}

// EffectiveAmount возвращает номинал ваучера с учётом его множителя паузы.
// Множитель применяется ровно один раз — здесь; и полный, и доступный
// балансы суммируют эффективные номиналы, поэтому полный баланс никогда
// не опускается ниже доступного.
func EffectiveAmount(p model.Participant, v model.Voucher, cfg RateConfig) int64 {
	mult := v.Multiplier
	if mult < 1 {
		mult = 1
	}
	return VoucherAmount(p, cfg) * int64(mult)
}

// Full возвращает полный баланс: сумму эффективных номиналов ваучеров в
// состояниях pending и applied. Истраченные и просроченные ваучеры не
// учитываются.
func Full(snap Snapshot, cfg RateConfig) int64 {
	var total int64
	for _, v := range snap.Vouchers {
		if v.State == model.VoucherStatePending || v.State == model.VoucherStateApplied {
			total += EffectiveAmount(snap.Participant, v, cfg)
		}
	}
	return total
}

// Available возвращает доступный для одного заказа баланс: сумму эффективных
// номиналов не более чем двух старейших applied-ваучеров. При активной
// паузе учитываются только помеченные ваучеры.
func Available(snap Snapshot, cfg RateConfig) int64 {
	var total int64
	for _, v := range SpendableVouchers(snap) {
		total += EffectiveAmount(snap.Participant, v, cfg)
	}
	return total
}

// SpendableVouchers возвращает до двух старейших applied-ваучеров
// продуктового типа, отфильтрованных по флагу паузы при активной паузе.
func SpendableVouchers(snap Snapshot) []model.Voucher {
	var applied []model.Voucher
	for _, v := range snap.Vouchers {
		if v.State != model.VoucherStateApplied || v.Type != model.VoucherTypeGrocery {
			continue
		}
		if snap.PauseGateActive && !v.PauseFlag {
			continue
		}
		applied = append(applied, v)
	}

	sort.Slice(applied, func(i, j int) bool {
		return applied[i].CreatedAt.Before(applied[j].CreatedAt)
	})

	if len(applied) > AvailableVoucherCap {
		applied = applied[:AvailableVoucherCap]
	}
	return applied
}

// GoFresh возвращает фиксированную сумму корзины go-fresh по размеру
// домохозяйства либо 0, если функция выключена.
func GoFresh(p model.Participant, cfg RateConfig) int64 {
	if !cfg.GoFreshEnabled {
		return 0
	}

	size := p.HouseholdSize()
	switch {
	case size <= cfg.GoFreshSmallMax:
		return cfg.GoFreshSmallCents
	case size <= cfg.GoFreshMediumMax:
		return cfg.GoFreshMediumCents
	default:
		return cfg.GoFreshLargeCents
	}
}

// Summary возвращает все четыре баланса счёта. При отсутствии настроенной
// ставки возвращает нулевые балансы и ErrConfigurationMissing: вызывающий
// сам решает, считать ли это ошибкой.
func Summary(snap Snapshot, cfg RateConfig) (model.BalanceSummary, error) {
	if cfg.PerPersonCents <= 0 {
		return model.BalanceSummary{}, ErrConfigurationMissing
	}

	available := Available(snap, cfg)

	return model.BalanceSummary{
		FullCents:      Full(snap, cfg),
		AvailableCents: available,
		HygieneCents:   available / 3,
		GoFreshCents:   GoFresh(snap.Participant, cfg),
	}, nil
}
