package ledger

import (
	"sort"
	"strconv"

	"github.com/bibip/dealerdb/dealer"
	"github.com/shopspring/decimal"
)

type modelAgg struct {
	modelID int
	count   int64
	total   decimal.Decimal // sum of the cars' list prices, one per sale
}

// avgGreater reports whether a's average price is greater than b's. Averages
// are compared by cross-multiplication so no division rounding is involved.
func avgGreater(a, b modelAgg) bool {
	left := a.total.Mul(decimal.NewFromInt(b.count))
	right := b.total.Mul(decimal.NewFromInt(a.count))
	return left.GreaterThan(right)
}

// TopModelsBySales returns up to 3 models ranked by number of non-deleted
// sales, ties broken by descending average car price. Malformed car or sale
// rows are skipped; models whose id cannot be resolved to a name are
// dropped from the result.
func (s *Store) TopModelsBySales() ([]dealer.ModelSaleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// vin -> (model id, price) for every indexed car
	carIdx, err := s.cars.Index()
	if err != nil {
		return nil, err
	}
	carRows, err := s.readAllRows(s.cars)
	if err != nil {
		return nil, err
	}
	type carInfo struct {
		modelID int
		price   decimal.Decimal
	}
	vinToCar := make(map[string]carInfo, len(carIdx))
	for vin, pos := range carIdx {
		if pos < 0 || pos >= len(carRows) {
			continue
		}
		fields := carRows[pos]
		if len(fields) < 5 {
			continue
		}
		modelID, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(fields[2])
		if err != nil {
			continue
		}
		vinToCar[vin] = carInfo{modelID: modelID, price: price}
	}

	// one pass over the sales log, counting live sales per model; order
	// keeps model ids in first-seen order so full ties rank the same way
	// on every call
	aggs := map[int]*modelAgg{}
	var order []int
	err = s.sales.Scan(func(pos int, fields []string) error {
		if len(fields) < 4 {
			return nil
		}
		if len(fields) >= 5 && fields[4] == dealer.DeletedMarker {
			return nil
		}
		car, ok := vinToCar[fields[1]]
		if !ok {
			return nil
		}
		a := aggs[car.modelID]
		if a == nil {
			a = &modelAgg{modelID: car.modelID}
			aggs[car.modelID] = a
			order = append(order, car.modelID)
		}
		a.count++
		a.total = a.total.Add(car.price)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]modelAgg, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, *aggs[id])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return avgGreater(ranked[i], ranked[j])
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	// resolve model ids to names; unresolvable ids are dropped, not errors
	modelIdx, err := s.models.Index()
	if err != nil {
		return nil, err
	}
	modelRows, err := s.readAllRows(s.models)
	if err != nil {
		return nil, err
	}
	var res []dealer.ModelSaleStats
	for _, a := range ranked {
		pos, ok := modelIdx[modelKey(a.modelID)]
		if !ok || pos < 0 || pos >= len(modelRows) {
			continue
		}
		fields := modelRows[pos]
		if len(fields) < 3 {
			continue
		}
		res = append(res, dealer.ModelSaleStats{
			CarModelName: fields[1],
			Brand:        fields[2],
			SalesNumber:  int(a.count),
		})
	}
	return res, nil
}
