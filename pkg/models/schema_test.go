package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableDocument(t *testing.T) {
	tests := []struct {
		name     string
		table    Table
		expected string
	}{
		{
			name:     "name only",
			table:    Table{Name: "orders", QualifiedName: "public.orders"},
			expected: "Table: orders",
		},
		{
			name: "with description",
			table: Table{
				Name:          "orders",
				QualifiedName: "public.orders",
				Description:   "Customer purchase orders",
			},
			expected: "Table: orders\nDescription: Customer purchase orders",
		},
		{
			name: "with description and domain",
			table: Table{
				Name:           "orders",
				QualifiedName:  "public.orders",
				Description:    "Customer purchase orders",
				BusinessDomain: "sales",
			},
			expected: "Table: orders\nDescription: Customer purchase orders\nDomain: sales",
		},
		{
			name: "domain without description",
			table: Table{
				Name:           "orders",
				QualifiedName:  "public.orders",
				BusinessDomain: "sales",
			},
			expected: "Table: orders\nDomain: sales",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.table.Document())
		})
	}
}

func TestColumnDocument(t *testing.T) {
	c := Column{QualifiedName: "public.orders.total", Description: "Order total in cents"}
	assert.Equal(t, "Column: public.orders.total\nDescription: Order total in cents", c.Document())

	bare := Column{QualifiedName: "public.orders.total"}
	assert.Equal(t, "Column: public.orders.total", bare.Document())
}

func TestVectorIDs(t *testing.T) {
	tbl := Table{Name: "orders", QualifiedName: "public.orders"}
	assert.Equal(t, "table_orders", tbl.VectorID())

	col := Column{QualifiedName: "public.orders.total"}
	assert.Equal(t, "column_public_orders_total", col.VectorID())
}

func TestColumnIsTrivial(t *testing.T) {
	tests := []struct {
		name    string
		col     Column
		trivial bool
	}{
		{"plain primary key", Column{Name: "id", IsPrimaryKey: true}, true},
		{"pk that is also fk", Column{Name: "user_id", IsPrimaryKey: true, IsForeignKey: true}, false},
		{"created_at", Column{Name: "created_at"}, true},
		{"Updated_At mixed case", Column{Name: "Updated_At"}, true},
		{"business column", Column{Name: "order_total"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.trivial, tt.col.IsTrivial())
		})
	}
}
