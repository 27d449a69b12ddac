package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/domain"
	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
)

// exportFormat one download encoding
type exportFormat struct {
	ext         string
	contentType string
	encode      func([]domain.StoredBaliza) ([]byte, error)
}

var exportFormats = map[string]exportFormat{
	"json": {ext: "json", contentType: "application/json", encode: encodeJSONExport},
	"csv":  {ext: "csv", contentType: "text/csv; charset=utf-8", encode: encodeCSVExport},
	"xlsx": {ext: "xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", encode: encodeXLSXExport},
}

func parseExportFormat(s string) (exportFormat, error) {
	if s == "" {
		s = "json"
	}
	f, ok := exportFormats[s]
	if !ok {
		return exportFormat{}, invalid("format %q, want json, csv or xlsx", s)
	}
	return f, nil
}

func exportFilename(now time.Time, f exportFormat) string {
	return fmt.Sprintf("balizas-%d.%s", now.UnixMilli(), f.ext)
}

// exportRow flat spreadsheet form of a stored baliza
type exportRow struct {
	ID          string  `csv:"id"`
	Lat         float64 `csv:"latitud"`
	Lon         float64 `csv:"longitud"`
	Estado      string  `csv:"estado"`
	Carretera   string  `csv:"carretera"`
	PK          string  `csv:"pk"`
	Sentido     string  `csv:"sentido"`
	Orientacion string  `csv:"orientacion"`
	Comunidad   string  `csv:"comunidad"`
	Provincia   string  `csv:"provincia"`
	Municipio   string  `csv:"municipio"`
	FirstSeen   string  `csv:"primera_deteccion"`
	LastSeen    string  `csv:"ultima_deteccion"`
	UpdatedAt   string  `csv:"actualizado"`
}

var exportHeader = []string{
	"ID", "Latitud", "Longitud", "Estado", "Carretera", "PK", "Sentido", "Orientación",
	"Comunidad", "Provincia", "Municipio", "Primera detección", "Última detección", "Actualizado",
}

func (e exportRow) cells() []interface{} {
	return []interface{}{
		e.ID, e.Lat, e.Lon, e.Estado, e.Carretera, e.PK, e.Sentido, e.Orientacion,
		e.Comunidad, e.Provincia, e.Municipio, e.FirstSeen, e.LastSeen, e.UpdatedAt,
	}
}

func toExportRows(rows []domain.StoredBaliza) []exportRow {
	out := make([]exportRow, 0, len(rows))
	for _, b := range rows {
		out = append(out, exportRow{
			ID:          b.ID,
			Lat:         b.Lat,
			Lon:         b.Lon,
			Estado:      string(b.Status),
			Carretera:   b.Carretera,
			PK:          b.PK,
			Sentido:     b.Sentido,
			Orientacion: b.Orientacion,
			Comunidad:   b.Comunidad,
			Provincia:   b.Provincia,
			Municipio:   b.Municipio,
			FirstSeen:   formatTime(b.FirstSeen),
			LastSeen:    formatTime(b.LastSeen),
			UpdatedAt:   formatTime(b.UpdatedAt),
		})
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func encodeJSONExport(rows []domain.StoredBaliza) ([]byte, error) {
	return json.Marshal(rows)
}

// utf8BOM lets spreadsheet tools detect the encoding of accented names
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func encodeCSVExport(rows []domain.StoredBaliza) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(exportRow{}); err != nil {
			return nil, fmt.Errorf("failed to encode csv header: %w", err)
		}
	} else if err := enc.Encode(toExportRows(rows)); err != nil {
		return nil, fmt.Errorf("failed to encode csv rows: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeXLSXExport(rows []domain.StoredBaliza) ([]byte, error) {
	f := excelize.NewFile()

	sheet := "Balizas"
	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFE8CC"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeader))
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range toExportRows(rows) {
		cells := row.cells()
		if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &cells); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
