package types

// Contract is a deployed, versioned unit of contract code plus the tables it
// has declared. Name is globally unique.
type Contract struct {
	Name     string               `json:"_id"`
	Owner    string               `json:"owner"`
	Code     string               `json:"code"`
	CodeHash string               `json:"codeHash"`
	Tables   map[string]TableMeta `json:"tables"`
	Version  uint64               `json:"version"`
}

// TableMeta describes one table owned by a contract. The key of the table in
// Contract.Tables is "<contract>_<table>".
type TableMeta struct {
	Size       uint64   `json:"size"`
	Hash       string   `json:"hash"`
	NbIndexes  int      `json:"nbIndexes"`
	PrimaryKey []string `json:"primaryKey,omitempty"`
}

// TableKey returns the key a table is registered under in Contract.Tables.
func TableKey(contract, table string) string {
	return contract + "_" + table
}

// Copy returns a deep copy of c.
func (c *Contract) Copy() *Contract {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Tables = make(map[string]TableMeta, len(c.Tables))
	for k, v := range c.Tables {
		if v.PrimaryKey != nil {
			v.PrimaryKey = append([]string(nil), v.PrimaryKey...)
		}
		cpy.Tables[k] = v
	}
	return &cpy
}
