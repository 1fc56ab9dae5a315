// Package packing распределяет заказы сводного заказа между упаковщиками.
package packing

import (
	"errors"
	"sort"
	"strings"

	"github.com/okoshkina/benefit-system/internal/model"
)

// Strategy описывает стратегию разбиения сводного заказа.
type Strategy string

const (
	// StrategyNone отдаёт все заказы одному упаковщику.
	StrategyNone Strategy = "none"
	// StrategyRoundRobin распределяет заказы равномерно, тяжёлые первыми.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyFiftyFifty — round_robin для двух упаковщиков.
	StrategyFiftyFifty Strategy = "fifty_fifty"
	// StrategyByCategory закрепляет категории за упаковщиками и делит
	// заказы по позициям, а не целиком.
	StrategyByCategory Strategy = "by_category"
)

// ErrNoPackers возвращается, если упаковщики не заданы.
var (
	ErrNoPackers = errors.New("at least one packer required")
	// ErrUnknownStrategy возвращается для нераспознанной стратегии.
	ErrUnknownStrategy = errors.New("unknown split strategy")
)

// Options настраивает разбиение.
type Options struct {
	// WeightByItems взвешивает заказы количеством единиц товара
	// вместо суммы.
	WeightByItems bool
	// CategoryOwners закрепляет категории и подкатегории за упаковщиками
	// для стратегии by_category. Категории, не закреплённые ни за кем,
	// достаются первому упаковщику.
	CategoryOwners map[string][]string
}

// Split распределяет заказы между упаковщиками по выбранной стратегии и
// возвращает по одному рабочему списку на упаковщика.
func Split(orders []model.Order, strategy Strategy, packers []string, opts Options) ([]model.PackingList, error) {
	if len(packers) == 0 {
		return nil, ErrNoPackers
	}

	switch strategy {
	case StrategyNone:
		return splitNone(orders, packers[0]), nil
	case StrategyRoundRobin, StrategyFiftyFifty:
		return splitBalanced(orders, packers, opts.WeightByItems), nil
	case StrategyByCategory:
		return splitByCategory(orders, packers, opts.CategoryOwners), nil
	default:
		return nil, ErrUnknownStrategy
	}
}

func splitNone(orders []model.Order, packer string) []model.PackingList {
	list := model.PackingList{Packer: packer}
	for _, o := range orders {
		list.Lines = append(list.Lines, o.Items...)
	}
	list.Summary = Summarize(list.Lines)
	return []model.PackingList{list}
}

// splitBalanced раскладывает заказы по принципу наименее загруженной
// корзины, обходя заказы от самых тяжёлых к самым лёгким.
func splitBalanced(orders []model.Order, packers []string, weightByItems bool) []model.PackingList {
	weight := func(o model.Order) int64 {
		if weightByItems {
			return int64(o.ItemCount())
		}
		return o.TotalCents
	}

	sorted := make([]model.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return weight(sorted[i]) > weight(sorted[j])
	})

	lists := make([]model.PackingList, len(packers))
	for i, p := range packers {
		lists[i].Packer = p
	}
	weights := make([]int64, len(packers))

	for _, o := range sorted {
		lightest := 0
		for i := 1; i < len(weights); i++ {
			if weights[i] < weights[lightest] {
				lightest = i
			}
		}
		lists[lightest].Lines = append(lists[lightest].Lines, o.Items...)
		weights[lightest] += weight(o)
	}

	for i := range lists {
		lists[i].Summary = Summarize(lists[i].Lines)
	}
	return lists
}

// splitByCategory делит позиции заказов по принадлежности категорий.
// Каждая позиция попадает ровно в один список.
func splitByCategory(orders []model.Order, packers []string, owners map[string][]string) []model.PackingList {
	ownerOf := make(map[string]int)
	for i, p := range packers {
		for _, cat := range owners[p] {
			ownerOf[strings.ToLower(cat)] = i
		}
	}

	lists := make([]model.PackingList, len(packers))
	for i, p := range packers {
		lists[i].Packer = p
	}

	for _, o := range orders {
		for _, it := range o.Items {
			i, ok := ownerOf[strings.ToLower(it.Subcategory)]
			if !ok {
				i, ok = ownerOf[strings.ToLower(it.Category)]
			}
			if !ok {
				i = 0
			}
			lists[i].Lines = append(lists[i].Lines, it)
		}
	}

	for i := range lists {
		lists[i].Summary = Summarize(lists[i].Lines)
	}
	return lists
}

// Summarize строит сводку категория → товар → количество по позициям.
func Summarize(lines []model.LineItem) map[string]map[string]int {
	summary := make(map[string]map[string]int)
	for _, it := range lines {
		byProduct, ok := summary[it.Category]
		if !ok {
			byProduct = make(map[string]int)
			summary[it.Category] = byProduct
		}
		byProduct[it.Product] += it.Quantity
	}
	return summary
}

// Aggregate строит общую сводку по всем рабочим спискам.
func Aggregate(lists []model.PackingList) map[string]map[string]int {
	var all []model.LineItem
	for _, l := range lists {
		all = append(all, l.Lines...)
	}
	return Summarize(all)
}
