// Package validation реализует проверку заказа перед подтверждением:
// лимиты категорий и потолки балансов. Пакет только читает данные
// и никогда не изменяет состояние.
package validation

import (
	"strings"

	"github.com/okoshkina/benefit-system/internal/model"
)

// LimitScope описывает способ масштабирования лимита по составу домохозяйства.
type LimitScope string

const (
	ScopePerAdult     LimitScope = "PER_ADULT"
	ScopePerChild     LimitScope = "PER_CHILD"
	ScopePerInfant    LimitScope = "PER_INFANT"
	ScopePerHousehold LimitScope = "PER_HOUSEHOLD"
	ScopePerOrder     LimitScope = "PER_ORDER"
)

// ScopeMultiplier возвращает множитель лимита для участника.
// Лимит per_order не масштабируется.
func ScopeMultiplier(scope LimitScope, p model.Participant) int {
	switch scope {
	case ScopePerAdult:
		return p.Adults
	case ScopePerChild:
		return p.Children
	case ScopePerInfant:
		return p.Infants
	case ScopePerHousehold:
		return p.HouseholdSize()
	case ScopePerOrder:
		return 1
	default:
		return 1
	}
}

// Limit представляет лимит количества для категории или подкатегории.
// Подкатегория имеет приоритет над категорией при поиске лимита.
type Limit interface {
	limitKey() string
	Scope() LimitScope
	Quantity() int
	Label() string
}

// CategoryLimit ограничивает количество товаров категории.
type CategoryLimit struct {
	Category   string
	LimitScope LimitScope
	Max        int
}

func (l CategoryLimit) limitKey() string  { return "c:" + strings.ToLower(l.Category) }
func (l CategoryLimit) Scope() LimitScope { return l.LimitScope }
func (l CategoryLimit) Quantity() int     { return l.Max }
func (l CategoryLimit) Label() string     { return l.Category }

// SubcategoryLimit ограничивает количество товаров подкатегории.
type SubcategoryLimit struct {
	Subcategory string
	LimitScope  LimitScope
	Max         int
}

func (l SubcategoryLimit) limitKey() string  { return "s:" + strings.ToLower(l.Subcategory) }
func (l SubcategoryLimit) Scope() LimitScope { return l.LimitScope }
func (l SubcategoryLimit) Quantity() int     { return l.Max }
func (l SubcategoryLimit) Label() string     { return l.Subcategory }

// lookupLimit находит лимит для позиции заказа: сначала по подкатегории,
// затем по категории. Лимит подкатегории имеет приоритет.
func lookupLimit(idx map[string]Limit, it model.LineItem) (string, Limit, bool) {
	if it.Subcategory != "" {
		key := "s:" + strings.ToLower(it.Subcategory)
		if l, ok := idx[key]; ok {
			return key, l, true
		}
	}
	key := "c:" + strings.ToLower(it.Category)
	l, ok := idx[key]
	return key, l, ok
}

// indexLimits строит индекс лимитов по ключу поиска.
func indexLimits(limits []Limit) map[string]Limit {
	idx := make(map[string]Limit, len(limits))
	for _, l := range limits {
		idx[l.limitKey()] = l
	}
	return idx
}
