package repository

// pauseRow описывает текущее состояние флага паузы заблокированной строки.
type pauseRow struct {
	id         int64
	pauseFlag  bool
	multiplier int
}

// pauseTargetMultiplier возвращает множитель, к которому приводит операция:
// заявленный при активации, единицу при снятии флага.
func pauseTargetMultiplier(activate bool, multiplier int) int {
	if activate {
		return multiplier
	}
	return 1
}

// planPauseState делит строки на требующие записи и уже находящиеся в
// целевом состоянии. Повторный вызов над результатом первой записи не
// возвращает ни одной строки к обновлению.
func planPauseState(rows []pauseRow, activate bool, multiplier int) (toUpdate []int64, skipped int) {
	target := pauseTargetMultiplier(activate, multiplier)
	for _, row := range rows {
		if row.pauseFlag == activate && row.multiplier == target {
			skipped++
			continue
		}
		toUpdate = append(toUpdate, row.id)
	}
	return toUpdate, skipped
}
