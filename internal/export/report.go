package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
)

const (
	reportTitle     = "RELATORIO DE AVALIACAO DE PNEUS"
	reportSeparator = ";;;;;;;;;;;;;;;;;;;;;;;;;;;;;;"
	reportTimestamp = "02/01/2006 15:04"
)

// cleanReportValue flattens a value onto one report line.
func cleanReportValue(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, ";", ",")
	return strings.TrimSpace(value)
}

func orPlaceholder(value string) string {
	if value == "" {
		return placeholderText
	}
	return value
}

type reportWriter struct {
	lines []string
}

func (w *reportWriter) line(text string) {
	w.lines = append(w.lines, text)
}

func (w *reportWriter) field(label, value string) {
	w.lines = append(w.lines, label+";"+cleanReportValue(value))
}

func (w *reportWriter) section(title string) {
	w.lines = append(w.lines, "--- "+title+" ---")
}

// RenderReport builds the semicolon-delimited report. A month without tires yields the header only.
func RenderReport(month tires.Month, records []tires.Tire, generatedAt time.Time, responsible string) Artifact {
	w := &reportWriter{}
	w.line(reportTitle)
	w.field("Mes", orPlaceholder(month.Name))
	w.field("Status do Mes", orPlaceholder(string(month.Status)))
	w.line(fmt.Sprintf("Total de Pneus;%d", len(records)))
	w.line("Gerado em;" + generatedAt.Format(reportTimestamp))
	w.field("Responsavel", orPlaceholder(responsible))
	w.line("")
	w.line(reportSeparator)
	w.line("")

	for _, tire := range records {
		w.field("PNEU Nº", orPlaceholder(tire.Number))
		w.field("Status", orPlaceholder(string(tire.Status)))
		w.line("")

		w.section("PLANEJAMENTO")
		w.field("Como sera realizado", tire.Planning.How)
		w.field("Instrucoes", tire.Planning.Instructions)
		w.line("")

		w.section("QUANDO")
		w.field("Inicio", tire.Schedule.Start)
		w.field("Fim", tire.Schedule.End)
		w.line("")

		w.section("ONDE")
		w.field("Nome", tire.Location.Name)
		w.field("Razao social", tire.Location.CompanyName)
		w.field("Endereco", tire.Location.Address)
		w.line("")

		w.section("RESPONSAVEIS")
		w.field("Responsaveis", strings.Join(tire.Responsibles, ", "))
		w.line("")

		w.section("CARACTERISTICAS DO PNEU")
		w.field("Marca", tire.Characteristics.Brand)
		w.field("Medida", tire.Characteristics.Size)
		w.field("Desenho", tire.Characteristics.Pattern)
		w.field("Profundidade", tire.Characteristics.TreadDepth)
		w.field("Vida", tire.Characteristics.Life)
		w.line("")

		w.section("INFORMACOES DO PNEU")
		w.field("DOT", tire.Inspection.DOT)
		w.field("Numero de fogo", tire.Inspection.FireNumber)
		w.field("Cliente", tire.Inspection.Customer)
		w.field("Data", tire.Inspection.Date)
		w.field("Mes de referencia", tire.Inspection.ReferenceMonth)
		w.field("Avaria", tire.Inspection.Damage)
		w.field("Causa", tire.Inspection.Cause)
		w.line("")

		w.section("FOTOS (LINKS)")
		photos := tire.Photos
		if len(photos) > tires.MaxPhotos {
			photos = photos[:tires.MaxPhotos]
		}
		if len(photos) == 0 {
			w.line("Sem fotos;")
		}
		for index, url := range photos {
			w.field(fmt.Sprintf("Foto %d", index+1), url)
		}
		w.line("")

		w.line(reportSeparator)
		w.line("")
	}

	return Artifact{
		Filename:    "relatorio_" + SanitizeFilename(month.Name) + ".csv",
		ContentType: contentTypeCSV,
		Body:        []byte(strings.Join(w.lines, "\n")),
		TireCount:   len(records),
	}
}
