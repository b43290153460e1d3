package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/viper"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/report"
)

func printSheets(sheets []attendance.Sheet) error {
	if viper.GetBool("json") {
		if sheets == nil {
			sheets = []attendance.Sheet{}
		}
		return printJSON(sheets)
	}
	report.RenderTable(os.Stdout, sheets)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
