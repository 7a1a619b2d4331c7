package ledger

import (
	"encoding/json"
	"io"

	"github.com/bibip/dealerdb/dealer"
	"github.com/tidwall/pretty"
)

// storeDump is the JSON shape of ExportJSON.
type storeDump struct {
	Models []dealer.Model `json:"models"`
	Cars   []dealer.Car   `json:"cars"`
	Sales  []dealer.Sale  `json:"sales"`
}

// ExportJSON writes a pretty-printed JSON snapshot of every parseable
// record in the store. Malformed rows are skipped, same as the scans.
// Meant for inspection and debugging, not as a backup format (positions
// and index order are not represented; use package backup for that).
func (s *Store) ExportJSON(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dump storeDump
	err := s.models.Scan(func(pos int, fields []string) error {
		if m, err := dealer.ParseModel(fields); err == nil {
			dump.Models = append(dump.Models, m)
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = s.cars.Scan(func(pos int, fields []string) error {
		if c, err := dealer.ParseCar(fields); err == nil {
			dump.Cars = append(dump.Cars, c)
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = s.sales.Scan(func(pos int, fields []string) error {
		if sl, err := dealer.ParseSale(fields); err == nil {
			dump.Sales = append(dump.Sales, sl)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d, err := json.Marshal(dump)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(d))
	return err
}
