package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bibip/dealerdb/dealer"
	"github.com/shopspring/decimal"
)

func modelKey(id int) string {
	return strconv.Itoa(id)
}

// GetCarFullInfo joins the car with its model and, if the car is sold, the
// first sales row recorded for its VIN. A missing VIN or a missing model is
// ErrNotFound; the join never returns a partial result.
//
// The sales row is taken whether or not it carries the deleted marker, so a
// reverted sale still shows its date and cost here.
func (s *Store) GetCarFullInfo(vin string) (dealer.CarFullInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.cars.LookupPosition(vin)
	if err != nil {
		return dealer.CarFullInfo{}, err
	}
	fields, err := s.cars.ReadAt(pos)
	if err != nil {
		return dealer.CarFullInfo{}, err
	}
	car, err := dealer.ParseCar(fields)
	if err != nil {
		return dealer.CarFullInfo{}, err
	}

	modelPos, err := s.models.LookupPosition(modelKey(car.Model))
	if err != nil {
		return dealer.CarFullInfo{}, err
	}
	mfields, err := s.models.ReadAt(modelPos)
	if err != nil {
		return dealer.CarFullInfo{}, err
	}
	model, err := dealer.ParseModel(mfields)
	if err != nil {
		return dealer.CarFullInfo{}, err
	}

	info := dealer.CarFullInfo{
		VIN:           car.VIN,
		CarModelName:  model.Name,
		CarModelBrand: model.Brand,
		Price:         car.Price,
		DateStart:     car.DateStart,
		Status:        car.Status,
	}

	if car.Status == dealer.StatusSold {
		var saleFields []string
		err := s.sales.Scan(func(pos int, fields []string) error {
			if len(fields) >= 4 && fields[1] == vin {
				saleFields = fields
				return errStopScan
			}
			return nil
		})
		if err != nil && err != errStopScan {
			return dealer.CarFullInfo{}, err
		}
		if saleFields != nil {
			salesDate, err := time.Parse(dealer.TimeFormat, saleFields[2])
			if err != nil {
				return dealer.CarFullInfo{}, fmt.Errorf("invalid sales date %q: %w", saleFields[2], err)
			}
			salesCost, err := decimal.NewFromString(saleFields[3])
			if err != nil {
				return dealer.CarFullInfo{}, fmt.Errorf("invalid sales cost %q: %w", saleFields[3], err)
			}
			info.SalesDate = &salesDate
			info.SalesCost = &salesCost
		}
	}
	return info, nil
}

// UpdateVin renames a car's primary key. The car line is rewritten with the
// new VIN and the cars index is rebuilt, fully sorted by key (appends leave
// it in insertion order; a rename is the only operation that sorts it).
// Record positions never change.
func (s *Store) UpdateVin(vin, newVin string) (dealer.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.cars.LookupPosition(vin)
	if err != nil {
		return dealer.Car{}, err
	}

	fields, err := s.cars.RewriteAt(pos, func(fields []string) ([]string, error) {
		if len(fields) != 5 {
			return nil, fmt.Errorf("car record at position %d has %d fields, want 5", pos, len(fields))
		}
		fields[0] = newVin
		return fields, nil
	})
	if err != nil {
		return dealer.Car{}, err
	}

	if err := s.cars.RenameKey(vin, newVin); err != nil {
		return dealer.Car{}, err
	}
	return dealer.ParseCar(fields)
}
