package knowledge

import (
	"fmt"
	"strings"
)

// ChunkType identifies what part of a table a chunk describes.
type ChunkType string

const (
	ChunkTable  ChunkType = "table"
	ChunkColumn ChunkType = "column"
	ChunkSample ChunkType = "sample"
)

// Chunk is one retrievable unit of schema text.
type Chunk struct {
	Type        ChunkType `json:"type"`
	Content     string    `json:"content"`
	TableName   string    `json:"table_name"`
	ColumnName  string    `json:"column_name,omitempty"`
	DataType    string    `json:"data_type,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Chunks splits the document into table, column and sample chunks, in
// document order.
func (d *Document) Chunks() []Chunk {
	var chunks []Chunk

	for _, t := range d.Tables {
		chunks = append(chunks, Chunk{
			Type:        ChunkTable,
			Content:     fmt.Sprintf("table: %s\ndescription: %s", t.TableName, t.BusinessDescription),
			TableName:   t.TableName,
			Description: t.BusinessDescription,
		})

		for _, c := range t.Columns {
			chunks = append(chunks, Chunk{
				Type:        ChunkColumn,
				Content:     fmt.Sprintf("table %s column %s type %s", t.TableName, c.Name, c.Type),
				TableName:   t.TableName,
				ColumnName:  c.Name,
				DataType:    c.Type,
				Description: fmt.Sprintf("column %s has type %s", c.Name, c.Type),
			})
		}

		if t.SampleData != nil && len(t.SampleData.Rows) > 0 {
			chunks = append(chunks, Chunk{
				Type: ChunkSample,
				Content: fmt.Sprintf("table %s sample data\ncolumns: %s\nrows: %d",
					t.TableName, strings.Join(t.SampleData.Columns, ", "), len(t.SampleData.Rows)),
				TableName:   t.TableName,
				Description: fmt.Sprintf("sample data of table %s", t.TableName),
			})
		}
	}

	return chunks
}

// metadata flattens the chunk's attributes for a vector store entry.
func (c Chunk) metadata() map[string]interface{} {
	m := map[string]interface{}{
		"chunk_type": string(c.Type),
		"table_name": c.TableName,
	}
	if c.ColumnName != "" {
		m["column_name"] = c.ColumnName
	}
	if c.DataType != "" {
		m["data_type"] = c.DataType
	}
	if c.Description != "" {
		m["description"] = c.Description
	}
	return m
}

func chunkFromMetadata(content string, m map[string]interface{}) Chunk {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Chunk{
		Type:        ChunkType(str("chunk_type")),
		Content:     content,
		TableName:   str("table_name"),
		ColumnName:  str("column_name"),
		DataType:    str("data_type"),
		Description: str("description"),
	}
}
