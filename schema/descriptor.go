package schema

import (
	"strings"
)

// Descriptor is the immutable mapping of one concrete or abstract type onto
// its chain of tables, root first. The select list always starts with the
// root identity column followed by every level's columns in registration
// order; references expand to (value, class name) and large objects to
// (size, mime type, filename). Row mapping relies on that layout.
type Descriptor struct {
	Key    string
	Tables []*Table
	New    func() interface{}

	selectClause string
	joinClause   string
	offsets      []int
	width        int

	lobSQL     string
	lobColumns []*Column
}

func newDescriptor(key string, tables []*Table, newFn func() interface{}) *Descriptor {
	d := &Descriptor{Key: key, Tables: tables, New: newFn}
	root := tables[0].Name

	var (
		selects = []string{root + ".id"}
		join    strings.Builder
	)

	join.WriteString(root)
	for level, table := range tables {
		if level > 0 {
			join.WriteString(" INNER JOIN " + table.Name + " ON " + table.Name + ".id = " + root + ".id")
		}

		d.offsets = append(d.offsets, len(selects))
		for _, column := range table.Columns {
			selects = append(selects, column.SelectExprs(table.Name)...)
		}
	}

	d.selectClause = strings.Join(selects, ", ")
	d.joinClause = join.String()
	d.width = len(selects)
	d.buildLargeObjectSQL()
	return d
}

func (d *Descriptor) buildLargeObjectSQL() {
	var (
		selects []string
		from    string
		join    strings.Builder
	)

	for _, table := range d.Tables {
		lobs := table.LargeObjects()
		if len(lobs) == 0 {
			continue
		}

		if from == "" {
			from = table.Name
			join.WriteString(table.Name)
		} else {
			join.WriteString(" INNER JOIN " + table.Name + " ON " + table.Name + ".id = " + from + ".id")
		}

		for _, column := range lobs {
			selects = append(selects, table.Name+"."+column.DBName)
			d.lobColumns = append(d.lobColumns, column)
		}
	}

	if from != "" {
		d.lobSQL = "SELECT " + strings.Join(selects, ", ") + " FROM " + join.String() + " WHERE " + from + ".id = ?"
	}
}

// Root returns the root table
func (d *Descriptor) Root() *Table {
	return d.Tables[0]
}

// Depth is the number of table levels
func (d *Descriptor) Depth() int {
	return len(d.Tables)
}

// IsAbstract reports whether the type can't be instantiated
func (d *Descriptor) IsAbstract() bool {
	return d.New == nil
}

// JoinClause is the FROM clause joining every level to the root by identity
func (d *Descriptor) JoinClause() string {
	return d.joinClause
}

// SelectClause is the select column list
func (d *Descriptor) SelectClause() string {
	return d.selectClause
}

// Width is the number of columns in the select list
func (d *Descriptor) Width() int {
	return d.width
}

// SelectSQL appends an optional caller supplied WHERE fragment to the generated SELECT
func (d *Descriptor) SelectSQL(where string) string {
	sql := "SELECT " + d.selectClause + " FROM " + d.joinClause
	if where = strings.TrimSpace(where); where != "" {
		sql += " WHERE " + where
	}
	return sql
}

// ByIdentitySQL selects one object by identity
func (d *Descriptor) ByIdentitySQL() string {
	return d.SelectSQL(d.Root().Name + ".id = ?")
}

// LargeObjectSQL selects the payloads of every large object column by identity; empty when there are none
func (d *Descriptor) LargeObjectSQL() (string, []*Column) {
	return d.lobSQL, d.lobColumns
}

// Columns lists every column of every level, root first
func (d *Descriptor) Columns() []*Column {
	var columns []*Column
	for _, table := range d.Tables {
		columns = append(columns, table.Columns...)
	}
	return columns
}

// LookUpColumn finds a column by table and physical name; table may be empty
func (d *Descriptor) LookUpColumn(table, dbName string) *Column {
	for _, t := range d.Tables {
		if table != "" && t.Name != table {
			continue
		}
		if column := t.LookUpColumn(dbName); column != nil {
			return column
		}
	}
	return nil
}

// Scan maps a row produced by SelectSQL onto obj for levels [fromLevel, Depth()).
// row[0], the identity, is left to the caller.
func (d *Descriptor) Scan(obj interface{}, row []interface{}, fromLevel int, stub StubFunc) error {
	for level := fromLevel; level < len(d.Tables); level++ {
		idx := d.offsets[level]
		for _, column := range d.Tables[level].Columns {
			width := column.Width()
			if err := column.Scan(obj, row[idx:idx+width], stub); err != nil {
				return err
			}
			idx += width
		}
	}
	return nil
}

// Position returns the select-list index of column's first expression, -1 if absent
func (d *Descriptor) Position(column *Column) int {
	for level, table := range d.Tables {
		idx := d.offsets[level]
		for _, c := range table.Columns {
			if c == column {
				return idx
			}
			idx += c.Width()
		}
	}
	return -1
}
