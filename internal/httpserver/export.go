package httpserver

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logboard/internal/model"
)

var csvHeader = []string{"ID", "Timestamp", "Severity", "Source", "Message"}

// handleExportCSV streams every matching record, newest first, as a CSV
// attachment. Sort and pagination parameters are ignored.
func (s *Server) handleExportCSV(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("export", start, err) }()

	raw := rawFilter(c)
	raw.SortBy, raw.SortOrder, raw.Page, raw.PageSize = "", "", "", ""

	var spec model.FilterSpec
	if spec, err = s.validator.Validate(raw); err != nil {
		writeError(c, err)
		return
	}
	var records []model.LogRecord
	if records, err = s.engine.Export(c.Request.Context(), spec); err != nil {
		writeError(c, err)
		return
	}

	filename := fmt.Sprintf("logs_export_%s.csv", s.now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err = writeCSV(w, records); err != nil {
		// Headers are already sent; the client sees a truncated file.
		log.Printf("httpserver: csv export: %v", err)
	}
}

func writeCSV(w *csv.Writer, records []model.LogRecord) error {
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			string(r.Severity),
			r.Source,
			r.Message,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
