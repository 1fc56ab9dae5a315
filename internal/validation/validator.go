package validation

import (
	"fmt"
	"strings"

	"github.com/okoshkina/benefit-system/internal/model"
)

// ViolationKind различает виды нарушений при проверке заказа.
type ViolationKind string

const (
	ViolationCategoryLimit   ViolationKind = "CATEGORY_LIMIT"
	ViolationBalanceExceeded ViolationKind = "BALANCE_EXCEEDED"
	ViolationHygieneExceeded ViolationKind = "HYGIENE_EXCEEDED"
	ViolationGoFreshExceeded ViolationKind = "GO_FRESH_EXCEEDED"
)

// Violation описывает одно нарушение с суммами и затронутыми товарами.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Group    string        `json:"group,omitempty"`
	Allowed  int           `json:"allowed,omitempty"`
	Actual   int           `json:"actual,omitempty"`
	Limit    int64         `json:"limit_amount,omitempty"`
	Amount   int64         `json:"amount,omitempty"`
	Products []string      `json:"products,omitempty"`
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationCategoryLimit:
		return fmt.Sprintf("category %q: %d exceeds limit %d (products: %s)",
			v.Group, v.Actual, v.Allowed, strings.Join(v.Products, ", "))
	default:
		return fmt.Sprintf("%s: amount %d exceeds limit %d", v.Kind, v.Amount, v.Limit)
	}
}

// ValidationError агрегирует все нарушения одной проверки заказа.
// Вызывающий получает полный список причин отказа, а не только первую.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "order validation failed: " + strings.Join(parts, "; ")
}

// group агрегирует позиции заказа с общим лимитом.
type group struct {
	limit    Limit
	label    string
	quantity int
	products []string
}

// Validate проверяет предложенный заказ: лимиты категорий и потолки балансов.
// Возвращает nil либо *ValidationError со всеми найденными нарушениями.
func Validate(items []model.LineItem, p model.Participant, limits []Limit, balances model.BalanceSummary) error {
	var violations []Violation

	violations = append(violations, checkLimits(items, p, limits)...)
	violations = append(violations, checkBalances(items, balances)...)

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func checkLimits(items []model.LineItem, p model.Participant, limits []Limit) []Violation {
	idx := indexLimits(limits)

	groups := make(map[string]*group)
	var order []string
	for _, it := range items {
		key, l, ok := lookupLimit(idx, it)
		if !ok {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{limit: l, label: l.Label()}
			groups[key] = g
			order = append(order, key)
		}
		g.quantity += it.Quantity
		g.products = append(g.products, it.Product)
	}

	var violations []Violation
	for _, key := range order {
		g := groups[key]
		allowed := g.limit.Quantity() * ScopeMultiplier(g.limit.Scope(), p)
		if g.quantity > allowed {
			violations = append(violations, Violation{
				Kind:     ViolationCategoryLimit,
				Group:    g.label,
				Allowed:  allowed,
				Actual:   g.quantity,
				Products: g.products,
			})
		}
	}
	return violations
}

func checkBalances(items []model.LineItem, balances model.BalanceSummary) []Violation {
	var food, hygiene, goFresh int64
	for _, it := range items {
		switch model.BucketForCategory(it.Category) {
		case model.BucketHygiene:
			hygiene += it.TotalCents()
		case model.BucketGoFresh:
			goFresh += it.TotalCents()
		default:
			food += it.TotalCents()
		}
	}

	var violations []Violation
	if food > balances.AvailableCents {
		violations = append(violations, Violation{
			Kind:   ViolationBalanceExceeded,
			Amount: food,
			Limit:  balances.AvailableCents,
		})
	}
	if hygiene > balances.HygieneCents {
		violations = append(violations, Violation{
			Kind:   ViolationHygieneExceeded,
			Amount: hygiene,
			Limit:  balances.HygieneCents,
		})
	}
	// Проверка go-fresh действует только при включённой функции.
	if balances.GoFreshCents > 0 && goFresh > balances.GoFreshCents {
		violations = append(violations, Violation{
			Kind:   ViolationGoFreshExceeded,
			Amount: goFresh,
			Limit:  balances.GoFreshCents,
		})
	}
	return violations
}
