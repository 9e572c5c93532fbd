package tabular

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML extracts every <table> of a page. A table is named after its id
// attribute, else its <caption>, else "table-N". Nested tables are read on
// their own and do not leak rows into the outer one.
func ParseHTML(data []byte) (*Workbook, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ParseHTML: %v: %w", err, domain.ErrParse)
	}

	wb := &Workbook{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			if rows := tableRows(n); len(rows) > 0 {
				wb.Sheets = append(wb.Sheets, Sheet{Name: tableName(n, len(wb.Sheets)+1), Rows: rows})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("ParseHTML: no table found: %w", domain.ErrParse)
	}
	return wb, nil
}

func tableName(table *html.Node, n int) string {
	for _, a := range table.Attr {
		if a.Key == "id" && a.Val != "" {
			return a.Val
		}
	}
	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Caption {
			if name := CleanCell(textContent(c)); name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("table-%d", n)
}

// tableRows collects the th/td text of every row that belongs to table.
func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				// nested table
			case atom.Tr:
				if row := rowCells(c); !IsBlankRow(row) {
					rows = append(rows, row)
				}
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, CleanCell(strings.Join(strings.Fields(textContent(c)), " ")))
		}
	}
	return cells
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteString(" ")
		case n.Type == html.ElementNode && n.DataAtom == atom.Table:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
