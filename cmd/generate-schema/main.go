package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/owd/pkg/owd1/model"

	"cloud.google.com/go/bigquery"
)

var owd1Schema string

func init() {
	flag.StringVar(&owd1Schema, "owd1", "/var/spool/datatypes/owd1.json", "filename to write owd1 schema")
}

func main() {
	flag.Parse()
	// Generate and save the schema for autoloading.
	sch, err := bigquery.InferSchema(model.ArchivalData{})
	rtx.Must(err, "failed to generate owd1 schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal owd1 schema")
	err = os.WriteFile(owd1Schema, b, 0o644)
	rtx.Must(err, "failed to write owd1 schema")
}
