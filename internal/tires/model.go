package tires

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Status is the lock flag shared by months and tires.
type Status string

const (
	// StatusInProgress marks a record that still accepts edits.
	StatusInProgress Status = "em_andamento"
	// StatusFinalized marks a locked record.
	StatusFinalized Status = "finalizado"
)

const (
	maxIdentifierLength = 190
	// MaxPhotos bounds the number of photo references kept per tire.
	MaxPhotos    = 4
	numberDigits = 6
	counterRowID = "contadorPneus"
)

var (
	// ErrInvalidMonthID indicates an empty or oversized month identifier.
	ErrInvalidMonthID = errors.New("tires: invalid month id")
	// ErrInvalidTireID indicates an empty or oversized tire identifier.
	ErrInvalidTireID = errors.New("tires: invalid tire id")
	// ErrInvalidPeriod indicates a year/month pair outside the accepted range.
	ErrInvalidPeriod = errors.New("tires: invalid period")
)

var monthNames = [12]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// MonthID represents a validated month identifier.
type MonthID string

// NewMonthID validates raw input and returns a MonthID.
func NewMonthID(rawInput string) (MonthID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMonthID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidMonthID, maxIdentifierLength)
	}
	return MonthID(trimmed), nil
}

func (id MonthID) String() string {
	return string(id)
}

// TireRef addresses one tire inside its month.
type TireRef struct {
	MonthID MonthID
	TireID  string
}

// NewTireRef validates both identifiers of a nested tire path.
func NewTireRef(rawMonthID, rawTireID string) (TireRef, error) {
	monthID, err := NewMonthID(rawMonthID)
	if err != nil {
		return TireRef{}, err
	}
	tireID := strings.TrimSpace(rawTireID)
	if tireID == "" {
		return TireRef{}, fmt.Errorf("%w: empty", ErrInvalidTireID)
	}
	if len(tireID) > maxIdentifierLength {
		return TireRef{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidTireID, maxIdentifierLength)
	}
	return TireRef{MonthID: monthID, TireID: tireID}, nil
}

// Period is the calendar month a bucket reports on.
type Period struct {
	Year  int
	Month int
}

// NewPeriod validates a year and a 1-based month number.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year < 1900 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod accepts the "YYYY-MM" value produced by a month picker.
func ParsePeriod(value string) (Period, error) {
	var year, month int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d-%d", &year, &month); err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, value)
	}
	return NewPeriod(year, month)
}

// DisplayName renders the period as "Março / 2026".
func (p Period) DisplayName() string {
	return fmt.Sprintf("%s / %d", monthNames[p.Month-1], p.Year)
}

// Month groups tire records for one reporting period.
type Month struct {
	ID          string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Name        string     `gorm:"column:nome;size:64;not null" json:"nome"`
	Year        int        `gorm:"column:ano;not null" json:"ano"`
	Number      int        `gorm:"column:mes;not null" json:"mes"`
	Status      Status     `gorm:"column:status;size:32;not null;default:em_andamento" json:"status"`
	TotalTires  int        `gorm:"column:total_pneus;not null;default:0" json:"totalPneus"`
	CreatedAt   time.Time  `gorm:"column:criado_em;not null;autoCreateTime:false;index:idx_meses_criado_em" json:"criadoEm"`
	UpdatedAt   *time.Time `gorm:"column:atualizado_em;autoUpdateTime:false;autoCreateTime:false" json:"atualizadoEm,omitempty"`
	FinalizedAt *time.Time `gorm:"column:finalizado_em" json:"finalizadoEm,omitempty"`
}

// TableName binds months to the "meses" collection.
func (Month) TableName() string {
	return "meses"
}

// Finalized reports whether the month locks its tires.
func (m Month) Finalized() bool {
	return m.Status == StatusFinalized
}

// Planning describes how the inspection is carried out.
type Planning struct {
	How          string `gorm:"column:como;type:text" json:"como"`
	Instructions string `gorm:"column:instrucoes;type:text" json:"instrucoes"`
}

// Schedule is the inspection time window.
type Schedule struct {
	Start string `gorm:"column:inicio;size:64" json:"inicio"`
	End   string `gorm:"column:fim;size:64" json:"fim"`
}

// Location identifies where the tire was inspected.
type Location struct {
	Name        string `gorm:"column:nome;size:320" json:"nome"`
	CompanyName string `gorm:"column:razao_social;size:320" json:"razaoSocial"`
	Address     string `gorm:"column:endereco;size:512" json:"endereco"`
}

// Characteristics captures the physical description of the tire.
type Characteristics struct {
	Brand      string `gorm:"column:marca;size:190" json:"marca"`
	Size       string `gorm:"column:medida;size:190" json:"medida"`
	Pattern    string `gorm:"column:desenho;size:190" json:"desenho"`
	TreadDepth string `gorm:"column:profundidade;size:64" json:"profundidade"`
	Life       string `gorm:"column:vida;size:64" json:"vida"`
}

// Inspection holds the identification and damage assessment.
type Inspection struct {
	DOT            string `gorm:"column:dot;size:64" json:"dot"`
	FireNumber     string `gorm:"column:numero_fogo;size:64" json:"numeroFogo"`
	Customer       string `gorm:"column:cliente;size:320" json:"cliente"`
	Date           string `gorm:"column:data;size:64" json:"data"`
	ReferenceMonth string `gorm:"column:mes_referencia;size:64" json:"mesReferencia"`
	Damage         string `gorm:"column:avaria;type:text" json:"avaria"`
	Cause          string `gorm:"column:causa;type:text" json:"causa"`
}

// Tire is one inspection entry nested under a month.
type Tire struct {
	ID              string                      `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	MonthID         string                      `gorm:"column:mes_id;size:190;not null;index:idx_pneus_mes_criado,priority:1" json:"mesId"`
	Number          string                      `gorm:"column:numero;size:16;not null;index" json:"numero"`
	Status          Status                      `gorm:"column:status;size:32;not null;default:em_andamento" json:"status"`
	Planning        Planning                    `gorm:"embedded;embeddedPrefix:planejamento_" json:"planejamento"`
	Schedule        Schedule                    `gorm:"embedded;embeddedPrefix:quando_" json:"quando"`
	Location        Location                    `gorm:"embedded;embeddedPrefix:onde_" json:"onde"`
	Responsibles    datatypes.JSONSlice[string] `gorm:"column:responsaveis" json:"responsaveis"`
	Characteristics Characteristics             `gorm:"embedded;embeddedPrefix:caracteristicas_" json:"caracteristicas"`
	Inspection      Inspection                  `gorm:"embedded;embeddedPrefix:informacoes_" json:"informacoes"`
	Photos          datatypes.JSONSlice[string] `gorm:"column:fotos" json:"fotos"`
	CreatedAt       time.Time                   `gorm:"column:criado_em;not null;autoCreateTime:false;index:idx_pneus_mes_criado,priority:2" json:"criadoEm"`
	UpdatedAt       time.Time                   `gorm:"column:atualizado_em;not null;autoUpdateTime:false;autoCreateTime:false" json:"atualizadoEm"`
	FinalizedAt     *time.Time                  `gorm:"column:finalizado_em" json:"finalizadoEm,omitempty"`
}

// TableName binds tires to the "pneus" collection.
func (Tire) TableName() string {
	return "pneus"
}

// Finalized reports whether the tire is read-only.
func (t Tire) Finalized() bool {
	return t.Status == StatusFinalized
}

// Form returns the user-editable sections of the tire.
func (t Tire) Form() TireForm {
	return TireForm{
		Planning:        t.Planning,
		Schedule:        t.Schedule,
		Location:        t.Location,
		Responsibles:    append([]string{}, t.Responsibles...),
		Characteristics: t.Characteristics,
		Inspection:      t.Inspection,
	}
}

// TireForm is the editable payload of a tire record.
type TireForm struct {
	Planning        Planning        `json:"planejamento"`
	Schedule        Schedule        `json:"quando"`
	Location        Location        `json:"onde"`
	Responsibles    []string        `json:"responsaveis"`
	Characteristics Characteristics `json:"caracteristicas"`
	Inspection      Inspection      `json:"informacoes"`
}

// normalized trims the free-text fields that are typed by hand.
func (f TireForm) normalized() TireForm {
	out := f
	out.Planning.How = strings.TrimSpace(f.Planning.How)
	out.Planning.Instructions = strings.TrimSpace(f.Planning.Instructions)
	out.Location.Name = strings.TrimSpace(f.Location.Name)
	out.Location.CompanyName = strings.TrimSpace(f.Location.CompanyName)
	out.Location.Address = strings.TrimSpace(f.Location.Address)
	out.Inspection.DOT = strings.TrimSpace(f.Inspection.DOT)
	out.Inspection.FireNumber = strings.TrimSpace(f.Inspection.FireNumber)
	out.Inspection.Customer = strings.TrimSpace(f.Inspection.Customer)
	out.Responsibles = make([]string, 0, len(f.Responsibles))
	for _, name := range f.Responsibles {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			out.Responsibles = append(out.Responsibles, trimmed)
		}
	}
	return out
}

// Counter is the singleton row holding the last allocated tire number.
type Counter struct {
	ID    string `gorm:"column:id;primaryKey;size:64;not null"`
	Total int64  `gorm:"column:total;not null;default:0"`
}

// TableName binds the counter to the "config" collection.
func (Counter) TableName() string {
	return "config"
}

// FormatNumber renders a counter value as the zero-padded display number.
func FormatNumber(value int64) string {
	return fmt.Sprintf("%0*d", numberDigits, value)
}
