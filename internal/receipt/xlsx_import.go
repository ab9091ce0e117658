package receipt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"buildtrack-backend/internal/apperr"
	"buildtrack-backend/internal/audit"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/quantity"
	"buildtrack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type column int

const (
	colDate column = iota
	colVehicle
	colMaterial
	colFilled
	colEmpty
	colQuantity
	colVendor
	colSite
	colChallan
	colRemarks
)

var headerAliases = map[string]column{
	"date":          colDate,
	"receiptdate":   colDate,
	"vehicle":       colVehicle,
	"vehicleno":     colVehicle,
	"vehiclenumber": colVehicle,
	"material":      colMaterial,
	"materialname":  colMaterial,
	"filled":        colFilled,
	"filledweight":  colFilled,
	"gross":         colFilled,
	"grossweight":   colFilled,
	"empty":         colEmpty,
	"emptyweight":   colEmpty,
	"tare":          colEmpty,
	"tareweight":    colEmpty,
	"quantity":      colQuantity,
	"qty":           colQuantity,
	"vendor":        colVendor,
	"vendorname":    colVendor,
	"supplier":      colVendor,
	"site":          colSite,
	"sitename":      colSite,
	"challan":       colChallan,
	"challanno":     colChallan,
	"challannumber": colChallan,
	"remarks":       colRemarks,
	"notes":         colRemarks,
}

var requiredColumns = map[column]string{
	colDate:     "date",
	colVehicle:  "vehicle number",
	colMaterial: "material",
	colFilled:   "filled weight",
	colEmpty:    "empty weight",
	colSite:     "site",
}

// day-first layouts as printed on weighbridge slips, then excelize's default m-d-yy
var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "02.01.2006", "2/1/2006", "01-02-06"}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	BatchID  *uuid.UUID               `json:"batchId"`
	Created  []models.MaterialReceipt `json:"created"`
	Errors   []RowError               `json:"errors"`
	RowCount int                      `json:"rowCount"`
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func parseCellDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

func parseCellDecimal(raw, field string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%s is empty", field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number", field, raw)
	}
	return d, nil
}

// lookups maps catalog names to ids for one organization.
type lookups struct {
	materials map[string]uuid.UUID
	vendors   map[string]uuid.UUID
	sites     map[string]string
}

func (l *Ledger) loadLookups(ctx context.Context, orgID uuid.UUID) (*lookups, error) {
	tenant := store.ForOrganization(l.rs, orgID)

	var masters []models.MaterialMaster
	if err := tenant.Read(ctx, &masters, nil); err != nil {
		return nil, err
	}
	var vendors []models.Vendor
	if err := tenant.Read(ctx, &vendors, nil); err != nil {
		return nil, err
	}
	var sites []models.Site
	if err := tenant.Read(ctx, &sites, nil); err != nil {
		return nil, err
	}

	lk := &lookups{
		materials: make(map[string]uuid.UUID, len(masters)),
		vendors:   make(map[string]uuid.UUID, len(vendors)),
		sites:     make(map[string]string, len(sites)+1),
	}
	for _, m := range masters {
		lk.materials[normalizeName(m.Name)] = m.ID
	}
	for _, v := range vendors {
		lk.vendors[normalizeName(v.Name)] = v.ID
	}
	for _, s := range sites {
		lk.sites[normalizeName(s.Name)] = s.ID.String()
	}
	lk.sites[normalizeName(models.UnallocatedSiteName)] = models.UnallocatedSiteID
	lk.sites[models.UnallocatedSiteID] = models.UnallocatedSiteID
	return lk, nil
}

func cell(row []string, idx map[column]int, c column) string {
	i, ok := idx[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (lk *lookups) rowInput(row []string, idx map[column]int) (Input, error) {
	var in Input
	var err error

	if in.Date, err = parseCellDate(cell(row, idx, colDate)); err != nil {
		return in, err
	}
	in.VehicleNumber = cell(row, idx, colVehicle)

	materialName := cell(row, idx, colMaterial)
	id, ok := lk.materials[normalizeName(materialName)]
	if !ok {
		return in, fmt.Errorf("unknown material %q", materialName)
	}
	in.MaterialID = id

	if in.FilledWeight, err = parseCellDecimal(cell(row, idx, colFilled), "filled weight"); err != nil {
		return in, err
	}
	if raw := cell(row, idx, colEmpty); raw != "" {
		if in.EmptyWeight, err = parseCellDecimal(raw, "empty weight"); err != nil {
			return in, err
		}
	}
	if raw := cell(row, idx, colQuantity); raw != "" {
		q, err := parseCellDecimal(raw, "quantity")
		if err != nil {
			return in, err
		}
		in.Quantity = quantity.Of(q)
	}

	if vendorName := cell(row, idx, colVendor); vendorName != "" {
		vid, ok := lk.vendors[normalizeName(vendorName)]
		if !ok {
			return in, fmt.Errorf("unknown vendor %q", vendorName)
		}
		in.VendorID = &vid
	}

	siteName := cell(row, idx, colSite)
	siteID, ok := lk.sites[normalizeName(siteName)]
	if !ok {
		return in, fmt.Errorf("unknown site %q", siteName)
	}
	in.SiteID = siteID

	in.ChallanNumber = cell(row, idx, colChallan)
	in.Remarks = cell(row, idx, colRemarks)
	return in, nil
}

// ImportXLSX reads the first sheet of a weighbridge export. The first row
// names the columns. Valid rows are stored together under one batch id;
// invalid rows are reported by sheet row number and never block the rest.
func (l *Ledger) ImportXLSX(ctx context.Context, orgID uuid.UUID, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("INVALID_XLSX", "cannot read spreadsheet: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("INVALID_XLSX", "spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("INVALID_XLSX", "cannot read sheet %s: %v", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, apperr.Validation("EMPTY_XLSX", "spreadsheet needs a header row and at least one data row")
	}

	idx := map[column]int{}
	for i, h := range rows[0] {
		if c, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := idx[c]; !dup {
				idx[c] = i
			}
		}
	}
	var missing []string
	for c, name := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("MISSING_COLUMNS", "spreadsheet is missing columns").With("columns", missing)
	}

	lk, err := l.loadLookups(ctx, orgID)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	res := &ImportResult{Created: []models.MaterialReceipt{}, Errors: []RowError{}}
	for i, row := range rows[1:] {
		sheetRow := i + 2
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		res.RowCount++

		in, err := lk.rowInput(row, idx)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: sheetRow, Message: err.Error()})
			continue
		}
		rec, err := l.build(ctx, orgID, in)
		if err != nil {
			var de *apperr.Error
			if !errors.As(err, &de) {
				return nil, err
			}
			res.Errors = append(res.Errors, RowError{Row: sheetRow, Message: de.Message})
			continue
		}
		rec.BatchID = &batchID
		res.Created = append(res.Created, *rec)
	}

	if len(res.Created) == 0 {
		return res, nil
	}
	err = store.ForOrganization(l.rs, orgID).InTx(ctx, func(tx store.RecordStore) error {
		for i := range res.Created {
			if err := tx.Insert(ctx, &res.Created[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import receipts: %w", err)
	}
	res.BatchID = &batchID

	l.audit.Record(ctx, orgID, audit.LogOptions{
		EntityType:  audit.EntityMaterialReceipt,
		EntityID:    batchID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("imported %d receipts from spreadsheet, %d rows rejected", len(res.Created), len(res.Errors)),
	})
	return res, nil
}
