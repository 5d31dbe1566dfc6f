package pdftext

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFCPU extracts page text by reading content streams with pdfcpu. It
// understands simple-font text operators only; fitz handles more encodings.
type PDFCPU struct{}

// NewPDFCPU creates a new PDFCPU page texter
func NewPDFCPU() *PDFCPU {
	return &PDFCPU{}
}

// PagesText returns the text of every page in order
func (p *PDFCPU) PagesText(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	pages := make([]string, 0, pctx.PageCount)
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
		if err != nil {
			return nil, fmt.Errorf("reading content of page %d: %w", pageNr, err)
		}
		if r == nil {
			pages = append(pages, "")
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading content of page %d: %w", pageNr, err)
		}
		pages = append(pages, textFromContent(data))
	}
	return pages, nil
}

// textFromContent interprets the text-showing operators of a content stream
func textFromContent(data []byte) string {
	var (
		out      strings.Builder
		operands []operand
	)
	newline := func() { out.WriteByte('\n') }

	lex := lexer{data: data}
	for {
		tok, ok := lex.next()
		if !ok {
			break
		}
		if tok.kind != kindOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.text {
		case "Tj":
			if s, ok := lastString(operands); ok {
				out.WriteString(s)
			}
		case "TJ":
			if len(operands) > 0 && operands[len(operands)-1].kind == kindArray {
				for _, el := range operands[len(operands)-1].items {
					switch el.kind {
					case kindString:
						out.WriteString(el.text)
					case kindNumber:
						// large negative kerning is a word gap
						if n, err := strconv.ParseFloat(el.text, 64); err == nil && n < -200 {
							out.WriteByte(' ')
						}
					}
				}
			}
		case "'", `"`:
			newline()
			if s, ok := lastString(operands); ok {
				out.WriteString(s)
			}
		case "Td", "TD":
			ty := 0.0
			if len(operands) >= 2 {
				ty, _ = strconv.ParseFloat(operands[len(operands)-1].text, 64)
			}
			if ty != 0 {
				newline()
			} else {
				out.WriteByte(' ')
			}
		case "T*", "ET", "Tm":
			newline()
		}
		operands = operands[:0]
	}
	return tidy(out.String())
}

func lastString(ops []operand) (string, bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].kind == kindString {
			return ops[i].text, true
		}
	}
	return "", false
}

// tidy collapses runs of spaces, trims lines and drops blank lines
func tidy(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
