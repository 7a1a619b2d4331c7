package ledger

import (
	"errors"
	"fmt"

	"github.com/bibip/dealerdb/dealer"
	"github.com/bibip/dealerdb/dlog"
)

// errStopScan aborts a Scan early once the wanted row is found.
var errStopScan = errors.New("stop scan")

// setStatus rewrites only the status field of the car line at pos. Fails if
// the target line is malformed; silently proceeding would corrupt the
// ledger.
func (s *Store) setStatus(pos int, status dealer.CarStatus) (dealer.Car, error) {
	fields, err := s.cars.RewriteAt(pos, func(fields []string) ([]string, error) {
		if len(fields) != 5 {
			return nil, fmt.Errorf("car record at position %d has %d fields, want 5", pos, len(fields))
		}
		fields[4] = string(status)
		return fields, nil
	})
	if err != nil {
		return dealer.Car{}, err
	}
	return dealer.ParseCar(fields)
}

// SellCar appends the sale and marks the car sold, returning the updated
// car.
//
// The sale row is appended before the VIN is validated: selling a VIN that
// is not in the cars index fails with ErrNotFound but leaves the sale row
// in the sales log permanently. Nothing is rolled back.
func (s *Store) SellCar(sale dealer.Sale) (dealer.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.sales.Append(sale.SalesNumber, sale.Fields()); err != nil {
		return dealer.Car{}, err
	}

	pos, err := s.cars.LookupPosition(sale.CarVIN)
	if err != nil {
		return dealer.Car{}, fmt.Errorf("no such car: %w", err)
	}

	car, err := s.setStatus(pos, dealer.StatusSold)
	if err != nil {
		return dealer.Car{}, err
	}
	dlog.Event("sell_car", "sales_number", sale.SalesNumber, "vin", sale.CarVIN)
	return car, nil
}

// RevertSale soft-deletes the first live sale row with the given number and
// marks the associated car available again. An already-deleted or unknown
// sales number fails with ErrNotFound; the two cases are indistinguishable.
//
// No check is made for other live sales referencing the same VIN; reverting
// any one sale marks the car available.
func (s *Store) RevertSale(salesNumber string) (dealer.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	salePos := -1
	carVIN := ""
	err := s.sales.Scan(func(pos int, fields []string) error {
		if len(fields) < 4 {
			return nil
		}
		if fields[0] != salesNumber {
			return nil
		}
		if len(fields) >= 5 && fields[4] == dealer.DeletedMarker {
			return nil
		}
		salePos = pos
		carVIN = fields[1]
		return errStopScan
	})
	if err != nil && err != errStopScan {
		return dealer.Car{}, err
	}
	if salePos < 0 {
		return dealer.Car{}, fmt.Errorf("sale %q: %w", salesNumber, ErrNotFound)
	}

	_, err = s.sales.RewriteAt(salePos, func(fields []string) ([]string, error) {
		return append(fields[:4], dealer.DeletedMarker), nil
	})
	if err != nil {
		return dealer.Car{}, err
	}

	pos, err := s.cars.LookupPosition(carVIN)
	if err != nil {
		return dealer.Car{}, fmt.Errorf("vin %q: %w", carVIN, err)
	}

	car, err := s.setStatus(pos, dealer.StatusAvailable)
	if err != nil {
		return dealer.Car{}, err
	}
	dlog.Event("revert_sale", "sales_number", salesNumber, "vin", carVIN)
	return car, nil
}
