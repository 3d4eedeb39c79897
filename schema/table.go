package schema

// Table is one level of a type hierarchy: an ordered set of columns bound
// to one physical table. Every table also has an implicit "id" column that
// joins it 1:1 to its parent level.
type Table struct {
	Name    string
	Columns []*Column

	columnsByDBName map[string]*Column
}

// LookUpColumn finds a column by physical name, including auxiliary columns
func (t *Table) LookUpColumn(dbName string) *Column {
	if column, ok := t.columnsByDBName[dbName]; ok {
		return column
	}
	return nil
}

// LargeObjects returns the large object columns of this level
func (t *Table) LargeObjects() []*Column {
	var columns []*Column
	for _, column := range t.Columns {
		if column.Type == TypeLargeObject {
			columns = append(columns, column)
		}
	}
	return columns
}

// bind derives physical names and labels and attaches columns to the table
func (t *Table) bind(namer Namer) error {
	t.columnsByDBName = map[string]*Column{}

	for _, column := range t.Columns {
		if column.table != nil && column.table != t {
			return brokenf("column %v is already bound to table %v", column.Name, column.table.Name)
		}
		column.table = t

		if column.Name == "" {
			return brokenf("table %v has a column without a name", t.Name)
		}
		if column.DBName == "" {
			column.DBName = namer.ColumnName(column.Name)
		}
		if column.Label == "" {
			column.Label = namer.Label(column.Name)
		}

		switch column.Type {
		case TypeReference:
			column.aux = []string{namer.AuxColumnName(column.DBName, SuffixClassName)}
		case TypeLargeObject:
			column.aux = []string{
				namer.AuxColumnName(column.DBName, SuffixMimeType),
				namer.AuxColumnName(column.DBName, SuffixFilename),
			}
		}

		for _, name := range append([]string{column.DBName}, column.aux...) {
			if !validIdentifier(name) {
				return brokenf("table %v: invalid column name %q", t.Name, name)
			}
			if name == "id" {
				return brokenf("table %v: column name id is reserved", t.Name)
			}
			if _, ok := t.columnsByDBName[name]; ok {
				return brokenf("table %v: duplicated column %v", t.Name, name)
			}
			t.columnsByDBName[name] = column
		}
	}
	return nil
}
