package leveldb

import "encoding/binary"

// Key layout of the store. Table names are alphanumeric, so the '/'
// separator never occurs inside a table name.
var (
	contractPrefix = []byte("c") // contractPrefix + name -> snappy(json contract)
	tablePrefix    = []byte("t") // tablePrefix + table -> json table info
	recordPrefix   = []byte("r") // recordPrefix + table + "/" + id (uint64 big endian) -> json document
	uniquePrefix   = []byte("u") // uniquePrefix + table + "/" + json primary key -> id
	blockPrefix    = []byte("b") // blockPrefix + num (uint64 big endian) -> json block info

	separator = []byte("/")
)

func encodeNumber(n uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, n)
	return enc
}

func join(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func contractKey(name string) []byte {
	return join(contractPrefix, []byte(name))
}

func tableKey(table string) []byte {
	return join(tablePrefix, []byte(table))
}

// recordRange is the prefix shared by every record of table.
func recordRange(table string) []byte {
	return join(recordPrefix, []byte(table), separator)
}

func recordKey(table string, id uint64) []byte {
	return join(recordRange(table), encodeNumber(id))
}

func uniqueKey(table string, primary []byte) []byte {
	return join(uniquePrefix, []byte(table), separator, primary)
}

func blockKey(number uint64) []byte {
	return join(blockPrefix, encodeNumber(number))
}
