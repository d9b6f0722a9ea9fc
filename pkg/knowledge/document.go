// Package knowledge supplies schema and business context to the agent.
//
// A Document is the precomputed description of a relational data source. It
// is split into chunks (one per table description, column and sample-data
// block) that a Retriever ranks against a query, either by keyword overlap or
// by vector similarity.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is the knowledge document for one database.
type Document struct {
	DBName          string         `json:"db_name"`
	DBPath          string         `json:"db_path"`
	CreatedAt       string         `json:"created_at"`
	Tables          []Table        `json:"tables"`
	Relationships   []Relationship `json:"relationships"`
	BusinessSummary string         `json:"business_summary"`
}

// Table describes one table.
type Table struct {
	TableName           string      `json:"table_name"`
	Columns             []Column    `json:"columns"`
	Indexes             []string    `json:"indexes"`
	Constraints         []string    `json:"constraints"`
	SampleData          *SampleData `json:"sample_data,omitempty"`
	BusinessDescription string      `json:"business_description"`
}

// Column describes one column. Nullable is "YES" or "NO".
type Column struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Nullable   string      `json:"nullable"`
	Default    interface{} `json:"default"`
	PrimaryKey bool        `json:"primary_key"`
}

// SampleData holds a few example rows.
type SampleData struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Relationship links two tables through a shared field.
type Relationship struct {
	Type        string `json:"type,omitempty"`
	FromTable   string `json:"from_table"`
	ToTable     string `json:"to_table"`
	Field       string `json:"field"`
	Description string `json:"description"`
}

// ParseDocument decodes a JSON knowledge document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge document: %w", err)
	}
	return &doc, nil
}

// LoadDocument reads a JSON knowledge document from path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load knowledge document: %w", err)
	}
	return ParseDocument(data)
}

// SaveDocument writes doc to path as indented JSON, creating parent directories.
func SaveDocument(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("save knowledge document: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("save knowledge document: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save knowledge document: %w", err)
	}
	return nil
}

// TableNames lists the tables in document order.
func (d *Document) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.TableName
	}
	return names
}

// Table returns the named table.
func (d *Document) Table(name string) (*Table, bool) {
	for i := range d.Tables {
		if d.Tables[i].TableName == name {
			return &d.Tables[i], true
		}
	}
	return nil, false
}

// Summary is a short description of the database.
func (d *Document) Summary() string {
	desc := d.BusinessSummary
	if desc == "" {
		desc = "No description available"
	}
	return fmt.Sprintf("Database: %s\nPath: %s\nTables: %d\nDescription: %s",
		d.DBName, d.DBPath, len(d.Tables), desc)
}

// ContextText renders the whole document as prompt context.
func (d *Document) ContextText() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Database: %s\n", d.DBName)
	fmt.Fprintf(&sb, "Path: %s\n", d.DBPath)
	fmt.Fprintf(&sb, "Created: %s\n", d.CreatedAt)
	fmt.Fprintf(&sb, "Tables: %d\n\n", len(d.Tables))

	sb.WriteString("Business summary:\n")
	sb.WriteString(d.BusinessSummary)
	sb.WriteString("\n\n")

	if len(d.Relationships) > 0 {
		sb.WriteString("Relationships:\n")
		for _, rel := range d.Relationships {
			fmt.Fprintf(&sb, "- %s\n", rel.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Table details:\n")
	for _, t := range d.Tables {
		fmt.Fprintf(&sb, "\nTable: %s\n", t.TableName)
		fmt.Fprintf(&sb, "Description: %s\n", t.BusinessDescription)

		sb.WriteString("Columns:\n")
		for _, c := range t.Columns {
			nullable := "NOT NULL"
			if c.Nullable == "YES" {
				nullable = "NULL"
			}
			pk := ""
			if c.PrimaryKey {
				pk = " (primary key)"
			}
			fmt.Fprintf(&sb, "  - %s: %s, %s%s\n", c.Name, c.Type, nullable, pk)
		}

		if len(t.Indexes) > 0 {
			fmt.Fprintf(&sb, "Indexes: %s\n", strings.Join(t.Indexes, ", "))
		}
		if len(t.Constraints) > 0 {
			sb.WriteString("Constraints:\n")
			for _, c := range t.Constraints {
				fmt.Fprintf(&sb, "  - %s\n", c)
			}
		}

		if t.SampleData != nil && len(t.SampleData.Rows) > 0 {
			cols := t.SampleData.Columns
			if len(cols) > 5 {
				cols = cols[:5]
			}
			sb.WriteString("Sample data:\n")
			fmt.Fprintf(&sb, "  Columns: %s\n", strings.Join(cols, ", "))
			for i, row := range t.SampleData.Rows {
				if i >= 2 {
					break
				}
				values := make([]string, len(cols))
				for j := range cols {
					if j < len(row) && row[j] != nil {
						values[j] = fmt.Sprint(row[j])
					} else {
						values[j] = "NULL"
					}
				}
				fmt.Fprintf(&sb, "  Row %d: %s\n", i+1, strings.Join(values, ", "))
			}
		}
	}

	return sb.String()
}
