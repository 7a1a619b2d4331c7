package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/bibip/dealerdb/dealer"
	"github.com/shopspring/decimal"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	assert.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	assert.NoError(t, err)
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func addTesla(t *testing.T, s *Store) dealer.Car {
	t.Helper()
	_, err := s.AddModel(dealer.Model{ID: 1, Name: "Model3", Brand: "Tesla"})
	assert.NoError(t, err)
	car := dealer.Car{
		VIN:       "VIN1",
		Model:     1,
		Price:     dec(t, "40000"),
		DateStart: date(2024, 1, 1),
		Status:    dealer.StatusAvailable,
	}
	_, err = s.AddCar(car)
	assert.NoError(t, err)
	return car
}

func TestGetModel(t *testing.T) {
	s := newStore(t)
	m, err := s.AddModel(dealer.Model{ID: 1, Name: "Model3", Brand: "Tesla"})
	assert.NoError(t, err)
	// pass-through confirmation
	assert.Equal(t, "Model3", m.Name)

	got, err := s.GetModel(1)
	assert.NoError(t, err)
	assert.Equal(t, dealer.Model{ID: 1, Name: "Model3", Brand: "Tesla"}, got)

	_, err = s.GetModel(2)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAddAndListCars(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)

	car2 := dealer.Car{
		VIN:       "VIN2",
		Model:     1,
		Price:     dec(t, "45000.50"),
		DateStart: date(2024, 3, 15),
		Status:    dealer.StatusSold,
	}
	got, err := s.AddCar(car2)
	assert.NoError(t, err)
	// pass-through confirmation, not a read-back
	assert.Equal(t, car2.VIN, got.VIN)

	available, err := s.ListCars(dealer.StatusAvailable)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(available))
	assert.Equal(t, "VIN1", available[0].VIN)
	assert.True(t, available[0].Price.Equal(dec(t, "40000")))
	assert.True(t, available[0].DateStart.Equal(date(2024, 1, 1)))

	sold, err := s.ListCars(dealer.StatusSold)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(sold))
	assert.Equal(t, "VIN2", sold[0].VIN)
	assert.True(t, sold[0].Price.Equal(dec(t, "45000.50")))
}

func TestListCarsSkipsMalformedRows(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)

	// corrupt rows in the middle of the log must not break the scan
	f, err := os.OpenFile(filepath.Join(s.RootDir(), "cars.txt"), os.O_APPEND|os.O_WRONLY, 0644)
	assert.NoError(t, err)
	_, err = f.WriteString("garbage;row\nVIN9;1;not-a-price;2024-01-01T00:00:00Z;available\n")
	assert.NoError(t, err)
	assert.NoError(t, f.Close())

	car2 := dealer.Car{VIN: "VIN2", Model: 1, Price: dec(t, "1"), DateStart: date(2024, 1, 2), Status: dealer.StatusAvailable}
	_, err = s.AddCar(car2)
	assert.NoError(t, err)

	cars, err := s.ListCars(dealer.StatusAvailable)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(cars))
	assert.Equal(t, "VIN1", cars[0].VIN)
	assert.Equal(t, "VIN2", cars[1].VIN)
}

func TestSellAndRevertScenario(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)

	sale := dealer.Sale{
		SalesNumber: "S1",
		CarVIN:      "VIN1",
		SalesDate:   date(2024, 2, 1),
		Cost:        dec(t, "39000"),
	}
	car, err := s.SellCar(sale)
	assert.NoError(t, err)
	assert.Equal(t, dealer.StatusSold, car.Status)
	assert.Equal(t, "VIN1", car.VIN)

	info, err := s.GetCarFullInfo("VIN1")
	assert.NoError(t, err)
	assert.Equal(t, "Model3", info.CarModelName)
	assert.Equal(t, "Tesla", info.CarModelBrand)
	assert.Equal(t, dealer.StatusSold, info.Status)
	assert.True(t, info.Price.Equal(dec(t, "40000")))
	assert.NotNil(t, info.SalesCost)
	assert.True(t, info.SalesCost.Equal(dec(t, "39000")))
	assert.NotNil(t, info.SalesDate)
	assert.True(t, info.SalesDate.Equal(date(2024, 2, 1)))

	car, err = s.RevertSale("S1")
	assert.NoError(t, err)
	assert.Equal(t, dealer.StatusAvailable, car.Status)

	// a sale is soft-deletable exactly once
	_, err = s.RevertSale("S1")
	assert.True(t, errors.Is(err, ErrNotFound))

	// unknown numbers are indistinguishable from deleted ones
	_, err = s.RevertSale("S999")
	assert.True(t, errors.Is(err, ErrNotFound))

	// car is available again, so no sale columns in the join
	info, err = s.GetCarFullInfo("VIN1")
	assert.NoError(t, err)
	assert.Equal(t, dealer.StatusAvailable, info.Status)
	assert.Nil(t, info.SalesDate)
	assert.Nil(t, info.SalesCost)
}

func TestGetCarFullInfoUsesFirstSaleRowEvenIfDeleted(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)

	_, err := s.SellCar(dealer.Sale{SalesNumber: "S1", CarVIN: "VIN1", SalesDate: date(2024, 2, 1), Cost: dec(t, "39000")})
	assert.NoError(t, err)
	_, err = s.RevertSale("S1")
	assert.NoError(t, err)
	_, err = s.SellCar(dealer.Sale{SalesNumber: "S2", CarVIN: "VIN1", SalesDate: date(2024, 3, 1), Cost: dec(t, "38000")})
	assert.NoError(t, err)

	// the join picks the first matching row in log order regardless of the
	// deleted marker, so the reverted S1 wins over the live S2
	info, err := s.GetCarFullInfo("VIN1")
	assert.NoError(t, err)
	assert.NotNil(t, info.SalesCost)
	assert.True(t, info.SalesCost.Equal(dec(t, "39000")))
}

func TestGetCarFullInfoNotFound(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)

	_, err := s.GetCarFullInfo("NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))

	// car referencing a missing model is a join failure, not a partial result
	_, err = s.AddCar(dealer.Car{VIN: "VIN2", Model: 99, Price: dec(t, "1"), DateStart: date(2024, 1, 1), Status: dealer.StatusAvailable})
	assert.NoError(t, err)
	_, err = s.GetCarFullInfo("VIN2")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetCarFullInfoSoldWithoutSaleRow(t *testing.T) {
	s := newStore(t)
	_, err := s.AddModel(dealer.Model{ID: 1, Name: "Model3", Brand: "Tesla"})
	assert.NoError(t, err)
	// status is serialized as given, so a car can be sold with no sale row
	_, err = s.AddCar(dealer.Car{VIN: "VIN1", Model: 1, Price: dec(t, "40000"), DateStart: date(2024, 1, 1), Status: dealer.StatusSold})
	assert.NoError(t, err)

	info, err := s.GetCarFullInfo("VIN1")
	assert.NoError(t, err)
	assert.Equal(t, dealer.StatusSold, info.Status)
	assert.Nil(t, info.SalesDate)
	assert.Nil(t, info.SalesCost)
}

func TestMalformedCarRowFailsPointOperations(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)
	_, err := s.SellCar(dealer.Sale{SalesNumber: "S1", CarVIN: "VIN1", SalesDate: date(2024, 2, 1), Cost: dec(t, "39000")})
	assert.NoError(t, err)

	// truncate the indexed car row to 4 fields
	carsPath := filepath.Join(s.RootDir(), "cars.txt")
	corrupt := "VIN1;1;40000;2024-01-01T00:00:00Z\n"
	err = os.WriteFile(carsPath, []byte(corrupt), 0644)
	assert.NoError(t, err)

	// point-target operations must hard-fail, not skip; these are parse
	// failures, not missing keys
	_, err = s.SellCar(dealer.Sale{SalesNumber: "S2", CarVIN: "VIN1", SalesDate: date(2024, 3, 1), Cost: dec(t, "38000")})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = s.UpdateVin("VIN1", "VIN2")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = s.RevertSale("S1")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	// the corrupt line was never rewritten
	d, err := os.ReadFile(carsPath)
	assert.NoError(t, err)
	assert.Equal(t, corrupt, string(d))
}

func TestSellCarUnknownVINLeavesOrphanSale(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)

	_, err := s.SellCar(dealer.Sale{SalesNumber: "S1", CarVIN: "GHOST", SalesDate: date(2024, 2, 1), Cost: dec(t, "1000")})
	assert.True(t, errors.Is(err, ErrNotFound))

	// the sale row was appended before the VIN check and stays forever
	d, err := os.ReadFile(filepath.Join(s.RootDir(), "sales.txt"))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(d), "S1;GHOST;"))

	// the car was never touched
	cars, err := s.ListCars(dealer.StatusAvailable)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(cars))
}

func TestUpdateVin(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)
	_, err := s.AddCar(dealer.Car{VIN: "AVIN", Model: 1, Price: dec(t, "2"), DateStart: date(2024, 1, 2), Status: dealer.StatusAvailable})
	assert.NoError(t, err)

	before, err := s.GetCarFullInfo("VIN1")
	assert.NoError(t, err)

	car, err := s.UpdateVin("VIN1", "VIN1NEW")
	assert.NoError(t, err)
	assert.Equal(t, "VIN1NEW", car.VIN)
	assert.True(t, car.Price.Equal(dec(t, "40000")))

	after, err := s.GetCarFullInfo("VIN1NEW")
	assert.NoError(t, err)
	assert.Equal(t, before.CarModelName, after.CarModelName)
	assert.True(t, before.Price.Equal(after.Price))
	assert.True(t, before.DateStart.Equal(after.DateStart))

	_, err = s.GetCarFullInfo("VIN1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.UpdateVin("VIN1", "X")
	assert.True(t, errors.Is(err, ErrNotFound))

	// a rename rewrites the cars index fully sorted by key
	d, err := os.ReadFile(filepath.Join(s.RootDir(), "cars_index.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "AVIN;1\nVIN1NEW;0\n", string(d))
}

func TestTopModelsBySales(t *testing.T) {
	s := newStore(t)
	models := []dealer.Model{
		{ID: 1, Name: "Model3", Brand: "Tesla"},
		{ID: 2, Name: "ModelY", Brand: "Tesla"},
		{ID: 3, Name: "Corolla", Brand: "Toyota"},
		{ID: 4, Name: "Civic", Brand: "Honda"},
	}
	for _, m := range models {
		_, err := s.AddModel(m)
		assert.NoError(t, err)
	}

	type carSpec struct {
		vin   string
		model int
		price string
	}
	cars := []carSpec{
		{"V1", 1, "40000"}, {"V2", 1, "42000"}, {"V3", 1, "41000"},
		{"V4", 2, "60000"}, {"V5", 2, "62000"},
		{"V6", 3, "25000"}, {"V7", 3, "26000"},
		{"V8", 4, "30000"},
	}
	for _, c := range cars {
		_, err := s.AddCar(dealer.Car{VIN: c.vin, Model: c.model, Price: dec(t, c.price), DateStart: date(2024, 1, 1), Status: dealer.StatusAvailable})
		assert.NoError(t, err)
	}

	// model 1: three sales; models 2 and 3: two each (2 has the higher
	// average price); model 4: one sale, pushed out of the top 3
	sells := []struct {
		num string
		vin string
	}{
		{"S1", "V1"}, {"S2", "V2"}, {"S3", "V3"},
		{"S4", "V4"}, {"S5", "V5"},
		{"S6", "V6"}, {"S7", "V7"},
		{"S8", "V8"},
	}
	for _, sl := range sells {
		_, err := s.SellCar(dealer.Sale{SalesNumber: sl.num, CarVIN: sl.vin, SalesDate: date(2024, 2, 1), Cost: dec(t, "100")})
		assert.NoError(t, err)
	}

	stats, err := s.TopModelsBySales()
	assert.NoError(t, err)
	assert.Equal(t, 3, len(stats))
	assert.Equal(t, "Model3", stats[0].CarModelName)
	assert.Equal(t, 3, stats[0].SalesNumber)
	assert.Equal(t, "ModelY", stats[1].CarModelName)
	assert.Equal(t, "Tesla", stats[1].Brand)
	assert.Equal(t, 2, stats[1].SalesNumber)
	assert.Equal(t, "Corolla", stats[2].CarModelName)
	assert.Equal(t, "Toyota", stats[2].Brand)
	assert.Equal(t, 2, stats[2].SalesNumber)

	// reverting a sale excludes it from the count
	_, err = s.RevertSale("S2")
	assert.NoError(t, err)
	_, err = s.RevertSale("S3")
	assert.NoError(t, err)

	stats, err = s.TopModelsBySales()
	assert.NoError(t, err)
	assert.Equal(t, 3, len(stats))
	// model 1 drops to one sale; ModelY leads, Corolla second
	assert.Equal(t, "ModelY", stats[0].CarModelName)
	assert.Equal(t, "Corolla", stats[1].CarModelName)
}

func TestTopModelsFullTieKeepsFirstSeenOrder(t *testing.T) {
	s := newStore(t)
	_, err := s.AddModel(dealer.Model{ID: 1, Name: "Model3", Brand: "Tesla"})
	assert.NoError(t, err)
	_, err = s.AddModel(dealer.Model{ID: 2, Name: "ModelY", Brand: "Tesla"})
	assert.NoError(t, err)

	// identical count and identical average price for both models; the
	// only ordering left is the order the sales scan first saw each model
	_, err = s.AddCar(dealer.Car{VIN: "V1", Model: 1, Price: dec(t, "30000"), DateStart: date(2024, 1, 1), Status: dealer.StatusAvailable})
	assert.NoError(t, err)
	_, err = s.AddCar(dealer.Car{VIN: "V2", Model: 2, Price: dec(t, "30000"), DateStart: date(2024, 1, 1), Status: dealer.StatusAvailable})
	assert.NoError(t, err)

	_, err = s.SellCar(dealer.Sale{SalesNumber: "S1", CarVIN: "V2", SalesDate: date(2024, 2, 1), Cost: dec(t, "100")})
	assert.NoError(t, err)
	_, err = s.SellCar(dealer.Sale{SalesNumber: "S2", CarVIN: "V1", SalesDate: date(2024, 2, 2), Cost: dec(t, "100")})
	assert.NoError(t, err)

	// model 2 was sold first, so it ranks first, on every call
	for i := 0; i < 5; i++ {
		stats, err := s.TopModelsBySales()
		assert.NoError(t, err)
		assert.Equal(t, 2, len(stats))
		assert.Equal(t, "ModelY", stats[0].CarModelName)
		assert.Equal(t, "Model3", stats[1].CarModelName)
	}
}

func TestTopModelsDropsUnresolvableModels(t *testing.T) {
	s := newStore(t)
	// a car whose model id was never added to the models log
	_, err := s.AddCar(dealer.Car{VIN: "V1", Model: 42, Price: dec(t, "100"), DateStart: date(2024, 1, 1), Status: dealer.StatusAvailable})
	assert.NoError(t, err)
	_, err = s.SellCar(dealer.Sale{SalesNumber: "S1", CarVIN: "V1", SalesDate: date(2024, 2, 1), Cost: dec(t, "90")})
	assert.NoError(t, err)

	stats, err := s.TopModelsBySales()
	assert.NoError(t, err)
	assert.Equal(t, 0, len(stats))
}

func TestExportJSON(t *testing.T) {
	s := newStore(t)
	addTesla(t, s)
	_, err := s.SellCar(dealer.Sale{SalesNumber: "S1", CarVIN: "VIN1", SalesDate: date(2024, 2, 1), Cost: dec(t, "39000")})
	assert.NoError(t, err)

	var buf bytes.Buffer
	err = s.ExportJSON(&buf)
	assert.NoError(t, err)

	var dump map[string]any
	err = json.Unmarshal(buf.Bytes(), &dump)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(dump))
	assert.True(t, strings.Contains(buf.String(), "VIN1"))
	assert.True(t, strings.Contains(buf.String(), "Model3"))
}

func TestOpenCreatesRootDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "store")
	s, err := Open(root)
	assert.NoError(t, err)
	defer s.Close()

	_, err = s.AddModel(dealer.Model{ID: 1, Name: "M", Brand: "B"})
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "models.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "models_index.txt"))
	assert.NoError(t, err)
}
