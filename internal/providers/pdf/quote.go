package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// QuoteData carries everything the printed budget needs. Amounts arrive
// pre-formatted so the layout stays dumb.
type QuoteData struct {
	CompanyName    string
	CompanyAddress string
	CompanyEmail   string

	Code         string
	Title        string
	CustomerName string
	Status       string
	IssueDate    string
	ValidUntil   string

	TotalAmount string
	Currency    string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateQuote(ctx context.Context, quote QuoteData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15,
		text.NewCol(12, "Presupuesto", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Número: "+quote.Code, props.Text{Top: 0}),
			text.New("Fecha de emisión: "+quote.IssueDate, props.Text{Top: 4}),
			text.New("Válido hasta: "+quote.ValidUntil, props.Text{Top: 8}),
			text.New("Estado: "+quote.Status, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(35,
		col.New(6).Add(
			text.New(quote.CompanyName, props.Text{Style: fontstyle.Bold}),
			text.New(quote.CompanyAddress, props.Text{Top: 5}),
			text.New(quote.CompanyEmail, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Cliente", props.Text{Style: fontstyle.Bold}),
			text.New(quote.CustomerName, props.Text{Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Concepto", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Importe", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	m.AddRow(15,
		text.NewCol(8, quote.Title, props.Text{Size: 9}),
		text.NewCol(4, quote.TotalAmount+" "+quote.Currency, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(12,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 11}),
		text.NewCol(3, quote.TotalAmount+" "+quote.Currency, props.Text{Style: fontstyle.Bold, Size: 11, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
