// Package persistence writes archival records to the data directory.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DataFile describes a file written to disk.
type DataFile struct {
	// Path is the full path of the file.
	Path string
	// Size is the number of bytes written.
	Size int

	// Prefix is the data directory the file was written into.
	Prefix string
	// Datatype is the archive's datatype, e.g. "owd1".
	Datatype string
	// Subtest distinguishes records of the same datatype, e.g. "server".
	Subtest string
	// UUID is the measured connection's UUID.
	UUID string
}

// WriteDataFile marshals data to JSON and writes it to a new file under
// prefix/datatype/YYYY/MM/DD/. The file name contains the datatype, the
// subtest, the current UTC timestamp and the uuid. It fails if the file
// already exists.
func WriteDataFile(prefix, datatype, subtest, uuid string, data any) (*DataFile, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC()
	dir := filepath.Join(prefix, datatype, timestamp.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, datatype+"-"+subtest+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid+".json")
	fp, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	n, err := fp.Write(content)
	if err != nil {
		fp.Close()
		return nil, err
	}
	if err := fp.Close(); err != nil {
		return nil, err
	}
	return &DataFile{
		Path:     path,
		Size:     n,
		Prefix:   prefix,
		Datatype: datatype,
		Subtest:  subtest,
		UUID:     uuid,
	}, nil
}
