// Package dealer defines the record types of a vehicle-dealership ledger
// and their flat-file field encodings.
package dealer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CarStatus is a car's lifecycle tag. Sales flip it between StatusAvailable
// and StatusSold; no other transitions exist.
type CarStatus string

const (
	StatusAvailable CarStatus = "available"
	StatusSold      CarStatus = "sold"
)

// DeletedMarker flags a soft-deleted sale as an optional fifth field.
const DeletedMarker = "deleted"

// TimeFormat is how timestamps are written to disk.
const TimeFormat = time.RFC3339

// Model is a car model. Immutable once written.
type Model struct {
	ID    int
	Name  string
	Brand string
}

// Car is a vehicle on the lot, keyed by VIN.
type Car struct {
	VIN       string
	Model     int // Model.ID
	Price     decimal.Decimal
	DateStart time.Time
	Status    CarStatus
}

// Sale records one sale of a car. Deleted is a soft-delete flag; a sale is
// never physically removed.
type Sale struct {
	SalesNumber string
	CarVIN      string
	SalesDate   time.Time
	Cost        decimal.Decimal
	Deleted     bool
}

// CarFullInfo joins a car with its model and, if sold, the first sale row
// recorded for its VIN. SalesDate and SalesCost are nil if no sale row was
// found.
type CarFullInfo struct {
	VIN           string
	CarModelName  string
	CarModelBrand string
	Price         decimal.Decimal
	DateStart     time.Time
	Status        CarStatus
	SalesDate     *time.Time
	SalesCost     *decimal.Decimal
}

// ModelSaleStats is one row of the top-models aggregation.
type ModelSaleStats struct {
	CarModelName string
	Brand        string
	SalesNumber  int // number of non-deleted sales
}

// Fields serializes m as id;name;brand.
func (m Model) Fields() []string {
	return []string{strconv.Itoa(m.ID), m.Name, m.Brand}
}

// ParseModel parses fields written by Model.Fields.
func ParseModel(fields []string) (Model, error) {
	if len(fields) != 3 {
		return Model{}, fmt.Errorf("model record has %d fields, want 3", len(fields))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return Model{}, fmt.Errorf("invalid model id %q: %w", fields[0], err)
	}
	return Model{ID: id, Name: fields[1], Brand: fields[2]}, nil
}

// Fields serializes c as vin;model_id;price;date_start;status. Price uses
// its canonical base-10 form and DateStart RFC 3339, both chosen so that a
// round-trip through the log loses no precision.
func (c Car) Fields() []string {
	return []string{
		c.VIN,
		strconv.Itoa(c.Model),
		c.Price.String(),
		c.DateStart.Format(TimeFormat),
		string(c.Status),
	}
}

// ParseCar parses fields written by Car.Fields.
func ParseCar(fields []string) (Car, error) {
	if len(fields) != 5 {
		return Car{}, fmt.Errorf("car record has %d fields, want 5", len(fields))
	}
	modelID, err := strconv.Atoi(fields[1])
	if err != nil {
		return Car{}, fmt.Errorf("invalid model id %q: %w", fields[1], err)
	}
	price, err := decimal.NewFromString(fields[2])
	if err != nil {
		return Car{}, fmt.Errorf("invalid price %q: %w", fields[2], err)
	}
	dateStart, err := time.Parse(TimeFormat, fields[3])
	if err != nil {
		return Car{}, fmt.Errorf("invalid date %q: %w", fields[3], err)
	}
	return Car{
		VIN:       fields[0],
		Model:     modelID,
		Price:     price,
		DateStart: dateStart,
		Status:    CarStatus(fields[4]),
	}, nil
}

// Fields serializes s as sales_number;car_vin;sales_date;cost with an
// optional trailing deleted marker.
func (s Sale) Fields() []string {
	fields := []string{
		s.SalesNumber,
		s.CarVIN,
		s.SalesDate.Format(TimeFormat),
		s.Cost.String(),
	}
	if s.Deleted {
		fields = append(fields, DeletedMarker)
	}
	return fields
}

// ParseSale parses fields written by Sale.Fields. Both the 4-field and the
// 5-field (soft-deleted) forms are accepted.
func ParseSale(fields []string) (Sale, error) {
	if len(fields) != 4 && len(fields) != 5 {
		return Sale{}, fmt.Errorf("sale record has %d fields, want 4 or 5", len(fields))
	}
	salesDate, err := time.Parse(TimeFormat, fields[2])
	if err != nil {
		return Sale{}, fmt.Errorf("invalid sales date %q: %w", fields[2], err)
	}
	cost, err := decimal.NewFromString(fields[3])
	if err != nil {
		return Sale{}, fmt.Errorf("invalid cost %q: %w", fields[3], err)
	}
	return Sale{
		SalesNumber: fields[0],
		CarVIN:      fields[1],
		SalesDate:   salesDate,
		Cost:        cost,
		Deleted:     len(fields) == 5 && fields[4] == DeletedMarker,
	}, nil
}
