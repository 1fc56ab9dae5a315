package repository

import "fmt"

// planConsumption решает, сколько ваучеров списать и какую сумму отнести
// на каждый. effective — эффективные номиналы (номинал × множитель) до двух
// старейших applied-ваучеров, старейший первым.
//
// Если сумма заказа не превышает эффективный номинал первого ваучера,
// списывается только он; иначе оба. Сумма распределяется последовательно:
// первый ваучер покрывает сколько может, остаток уходит на второй.
func planConsumption(effective []int64, total int64) ([]int64, error) {
	if len(effective) == 0 {
		return nil, fmt.Errorf("no applied vouchers: %w", ErrInsufficientBenefit)
	}

	if total <= effective[0] {
		return []int64{total}, nil
	}

	if len(effective) < 2 {
		return nil, fmt.Errorf("order total %d exceeds single voucher %d: %w",
			total, effective[0], ErrInsufficientBenefit)
	}
	if total > effective[0]+effective[1] {
		return nil, fmt.Errorf("order total %d exceeds both vouchers %d: %w",
			total, effective[0]+effective[1], ErrInsufficientBenefit)
	}

	return []int64{effective[0], total - effective[0]}, nil
}
