// Package export writes violation lists in CSV and JSON form.
//
//	exporter := export.NewCSVExporter(true)
//	if err := exporter.Export(ctx, violations, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
//
// The CSV form flattens list fields (evidence, tools used, missing data) into
// "; "-separated cells. The JSON form is always an array, empty when there are
// no violations.
package export
