package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
)

// recordRequest is the JSON body of create and update calls. Absent
// fields stay nil so updates can tell "unset" from "empty".
type recordRequest struct {
	Timestamp *string `json:"timestamp"`
	Message   *string `json:"message"`
	Severity  *string `json:"severity"`
	Source    *string `json:"source"`
}

// patch converts the request into a record patch. Timestamp parse
// failures are returned as field errors so they are reported together
// with the record rule violations.
func (r recordRequest) patch() (model.RecordPatch, []model.FieldError) {
	var p model.RecordPatch
	var fields []model.FieldError

	if r.Timestamp != nil {
		ts, err := query.ParseTimestamp(*r.Timestamp)
		if err != nil {
			fields = append(fields, model.FieldError{Field: "timestamp", Message: "must be an ISO 8601 timestamp"})
		} else {
			p.Timestamp = &ts
		}
	}
	p.Message = r.Message
	if r.Severity != nil {
		sev, _ := model.ParseSeverity(*r.Severity)
		p.Severity = &sev
	}
	p.Source = r.Source
	return p, fields
}

func rawFilter(c *gin.Context) query.RawFilter {
	return query.RawFilter{
		Severity:  c.Query("severity"),
		Source:    c.Query("source"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Page:      c.Query("page"),
		PageSize:  c.Query("page_size"),
	}
}

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, invalidParam("id", "must be a positive integer")
	}
	return id, nil
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Logboard API",
		"version": s.version,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	res, err := s.engine.List(c.Request.Context(), model.FilterSpec{PageSize: 1})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "log store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).String(),
		"log_count": res.Total,
	})
}

func (s *Server) handleCreate(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("create", start, err) }()

	var req recordRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		err = invalidParam("body", "invalid JSON body")
		writeError(c, err)
		return
	}

	patch, fields := req.patch()
	draft := model.RecordDraft{Timestamp: patch.Timestamp}
	if patch.Message != nil {
		draft.Message = *patch.Message
	}
	if patch.Severity != nil {
		draft.Severity = *patch.Severity
	}
	if patch.Source != nil {
		draft.Source = *patch.Source
	}
	fields = append(fields, recordFields(draft.Validate(s.now()))...)
	if len(fields) > 0 {
		err = &model.RecordError{Fields: fields}
		writeError(c, err)
		return
	}

	var rec model.LogRecord
	rec, err = s.store.Insert(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleGet(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("get", start, err) }()

	var id int64
	if id, err = parseID(c); err != nil {
		writeError(c, err)
		return
	}
	var rec model.LogRecord
	if rec, err = s.store.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUpdate(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("update", start, err) }()

	var id int64
	if id, err = parseID(c); err != nil {
		writeError(c, err)
		return
	}

	var req recordRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		err = invalidParam("body", "invalid JSON body")
		writeError(c, err)
		return
	}
	patch, fields := req.patch()
	fields = append(fields, recordFields(patch.Validate(s.now()))...)
	if len(fields) > 0 {
		err = &model.RecordError{Fields: fields}
		writeError(c, err)
		return
	}

	var rec model.LogRecord
	if rec, err = s.store.Update(c.Request.Context(), id, patch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDelete(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("delete", start, err) }()

	var id int64
	if id, err = parseID(c); err != nil {
		writeError(c, err)
		return
	}
	if err = s.store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Log " + strconv.FormatInt(id, 10) + " deleted successfully"})
}

func (s *Server) handleList(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("list", start, err) }()

	var spec model.FilterSpec
	if spec, err = s.validator.Validate(rawFilter(c)); err != nil {
		writeError(c, err)
		return
	}
	var res model.ListResult
	if res, err = s.engine.List(c.Request.Context(), spec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// aggregationField names the key of each aggregation item. Hour buckets
// are reported under "date" like day buckets.
func aggregationField(g model.GroupBy) string {
	switch g {
	case model.GroupBySeverity:
		return "severity"
	case model.GroupBySource:
		return "source"
	}
	return "date"
}

func (s *Server) handleSearch(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("aggregate", start, err) }()

	limit := -1
	if raw := c.Query("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			err = invalidParam("limit", "must be a positive integer")
			writeError(c, err)
			return
		}
		limit = n
	}

	var spec model.FilterSpec
	var groupBy model.GroupBy
	if spec, groupBy, err = s.validator.ValidateAggregate(rawFilter(c), c.Query("group_by")); err != nil {
		writeError(c, err)
		return
	}
	var res model.AggregationResult
	if res, err = s.engine.Aggregate(c.Request.Context(), spec, groupBy); err != nil {
		writeError(c, err)
		return
	}
	res = res.Top(limit)

	field := aggregationField(res.GroupBy)
	items := make([]gin.H, len(res.Groups))
	for i, g := range res.Groups {
		items[i] = gin.H{field: g.Key, "count": g.Count}
	}
	c.JSON(http.StatusOK, gin.H{
		"group_by":     res.GroupBy,
		"aggregations": items,
		"total_count":  res.TotalCount,
	})
}

func (s *Server) handleHistogram(c *gin.Context) {
	start := time.Now()
	var err error
	defer func() { s.metrics.observe("histogram", start, err) }()

	startDate, endDate, source, err := s.validator.ValidateHistogram(c.Query("start_date"), c.Query("end_date"), c.Query("source"))
	if err != nil {
		writeError(c, err)
		return
	}
	var res model.HistogramResult
	if res, err = s.engine.Histogram(c.Request.Context(), startDate, endDate, source); err != nil {
		writeError(c, err)
		return
	}

	filters := gin.H{"start_date": nil, "end_date": nil, "source": nil}
	if res.Start != nil {
		filters["start_date"] = res.Start.Format(time.RFC3339Nano)
	}
	if res.End != nil {
		filters["end_date"] = res.End.Format(time.RFC3339Nano)
	}
	if res.Source != "" {
		filters["source"] = res.Source
	}
	c.JSON(http.StatusOK, gin.H{
		"histogram": res.Buckets,
		"total":     res.Total(),
		"filters":   filters,
	})
}

// recordFields unpacks the field list of a record validation error.
func recordFields(err error) []model.FieldError {
	var re *model.RecordError
	if errors.As(err, &re) {
		return re.Fields
	}
	return nil
}
