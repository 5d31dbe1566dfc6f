// Package testpdf writes small single-page PDFs for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Text is a string drawn at a position in PDF points, origin bottom-left
type Text struct {
	X, Y float64
	S    string
}

// Lines lays out one string per line from the top of a letter page
func Lines(lines ...string) []Text {
	texts := make([]Text, len(lines))
	for i, l := range lines {
		texts[i] = Text{X: 72, Y: 720 - float64(i)*16, S: l}
	}
	return texts
}

// Grid lays out rows of cells at fixed column and row pitch
func Grid(x, y, colWidth, rowHeight float64, rows [][]string) []Text {
	var texts []Text
	for r, row := range rows {
		for c, cell := range row {
			texts = append(texts, Text{X: x + float64(c)*colWidth, Y: y - float64(r)*rowHeight, S: cell})
		}
	}
	return texts
}

// Build returns the bytes of a one-page Helvetica PDF showing texts
func Build(texts []Text) []byte {
	var content strings.Builder
	content.WriteString("BT\n/F1 10 Tf\n")
	for _, t := range texts {
		escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(t.S)
		fmt.Fprintf(&content, "1 0 0 1 %.2f %.2f Tm\n(%s) Tj\n", t.X, t.Y, escaped)
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// Write builds the PDF into dir/name and returns its path
func Write(dir, name string, texts []Text) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(texts), 0644); err != nil {
		return "", err
	}
	return path, nil
}
