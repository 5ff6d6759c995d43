package export

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
)

var tableHeader = []string{
	"Numero", "Status",
	"Como", "Instrucoes",
	"Inicio", "Fim",
	"Local", "Razao social", "Endereco",
	"Responsaveis",
	"Marca", "Medida", "Desenho", "Profundidade", "Vida",
	"DOT", "Numero de fogo", "Cliente", "Data", "Mes de referencia", "Avaria", "Causa",
	"Foto 1", "Foto 2", "Foto 3", "Foto 4",
	"Criado em", "Finalizado em",
}

// quoteTableValue always quotes and doubles embedded quotes.
func quoteTableValue(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func tableRow(tire tires.Tire) []string {
	row := []string{
		tire.Number, string(tire.Status),
		tire.Planning.How, tire.Planning.Instructions,
		tire.Schedule.Start, tire.Schedule.End,
		tire.Location.Name, tire.Location.CompanyName, tire.Location.Address,
		strings.Join(tire.Responsibles, "; "),
		tire.Characteristics.Brand, tire.Characteristics.Size, tire.Characteristics.Pattern,
		tire.Characteristics.TreadDepth, tire.Characteristics.Life,
		tire.Inspection.DOT, tire.Inspection.FireNumber, tire.Inspection.Customer,
		tire.Inspection.Date, tire.Inspection.ReferenceMonth, tire.Inspection.Damage, tire.Inspection.Cause,
	}
	for index := 0; index < tires.MaxPhotos; index++ {
		photo := ""
		if index < len(tire.Photos) {
			photo = tire.Photos[index]
		}
		row = append(row, photo)
	}
	finalizedAt := ""
	if tire.FinalizedAt != nil {
		finalizedAt = tire.FinalizedAt.UTC().Format(time.RFC3339)
	}
	return append(row, tire.CreatedAt.UTC().Format(time.RFC3339), finalizedAt)
}

func joinQuoted(values []string) string {
	quoted := make([]string, len(values))
	for index, value := range values {
		quoted[index] = quoteTableValue(value)
	}
	return strings.Join(quoted, ",")
}

// RenderTable builds the flat table layout. It refuses a month without tires.
func RenderTable(month tires.Month, records []tires.Tire) (Artifact, error) {
	if len(records) == 0 {
		return Artifact{}, ErrNothingToExport
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, joinQuoted(tableHeader))
	for _, tire := range records {
		lines = append(lines, joinQuoted(tableRow(tire)))
	}
	return Artifact{
		Filename:    "pneus_" + SanitizeFilename(month.ID) + ".csv",
		ContentType: contentTypeCSV,
		Body:        []byte(byteOrderMark + strings.Join(lines, "\n")),
		TireCount:   len(records),
	}, nil
}
