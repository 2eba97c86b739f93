package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lead-allocation/internal/auth"
	"lead-allocation/internal/dashboard"
	"lead-allocation/internal/excel"
	"lead-allocation/internal/logger"
	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
	"lead-allocation/internal/notify"
	"lead-allocation/internal/ocr"
)

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"ok": false, "error": msg})
}

// === Auth ===

func (a *app) login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	if !a.creds.Check(username, password) {
		logger.L().Warn("login_failed", "user", username, "ip", c.ClientIP())
		fail(c, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err := auth.SignIn(c, username); err != nil {
		fail(c, http.StatusInternalServerError, "could not save session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": username})
}

func (a *app) logout(c *gin.Context) {
	if id := auth.SessionID(c); id != "" {
		a.sessions.Close(id)
	}
	_ = auth.SignOut(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *app) session(c *gin.Context) *dashboard.Session {
	return a.sessions.Get(auth.SessionID(c), c.ClientIP())
}

// === Ranking ===

func parsePoint(latStr, lngStr string) (models.GeoPoint, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return models.GeoPoint{}, fmt.Errorf("invalid latitude %q", latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return models.GeoPoint{}, fmt.Errorf("invalid longitude %q", lngStr)
	}
	return models.GeoPoint{Latitude: lat, Longitude: lng}, nil
}

// reference takes lat/lng from the query, or else the session's current
// fix, requesting one if none has been applied yet. It writes the error
// response itself.
func (a *app) reference(c *gin.Context) (models.GeoPoint, bool) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr != "" || lngStr != "" {
		p, err := parsePoint(latStr, lngStr)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return models.GeoPoint{}, false
		}
		return p, true
	}

	sess := a.session(c)
	if p, _, ok := sess.Tracker.Current(); ok {
		return p, true
	}
	if p, ok := sess.Tracker.Refresh(c.Request.Context()); ok {
		return p, true
	}
	if p, _, ok := sess.Tracker.Current(); ok {
		return p, true
	}
	fail(c, http.StatusServiceUnavailable, "location unavailable")
	return models.GeoPoint{}, false
}

func rankingParams(c *gin.Context) (models.RankingParameters, error) {
	params := models.RankingParameters{SortBy: models.ParseSortKey(c.Query("sort"))}
	if v := c.Query("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("invalid min_score %q", v)
		}
		params.FilterMinScore = &n
	}
	return params, nil
}

func (a *app) ranked(c *gin.Context) (dashboard.State, bool) {
	params, err := rankingParams(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return dashboard.State{}, false
	}
	ref, ok := a.reference(c)
	if !ok {
		return dashboard.State{}, false
	}
	return dashboard.New(a.catalog, a.cfg.FilterThreshold).WithParams(params).SetReference(ref), true
}

func (a *app) rank(c *gin.Context) {
	st, ok := a.ranked(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"reference": st.Reference,
		"params":    st.Params,
		"result":    st.Result,
	})
}

func (a *app) nearest(c *gin.Context) {
	ref, ok := a.reference(c)
	if !ok {
		return
	}
	st := dashboard.New(a.catalog, a.cfg.FilterThreshold).SetReference(ref)
	if st.Nearest == nil {
		fail(c, http.StatusNotFound, "catalog is empty")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "reference": ref, "lead": st.Nearest})
}

func (a *app) exportRanked(c *gin.Context) {
	st, ok := a.ranked(c)
	if !ok {
		return
	}
	filename := fmt.Sprintf("ranked_%s.xlsx", uuid.New().String())
	path := filepath.Join(a.cfg.OutputDir, filename)
	if err := excel.WriteRanked(path, st.Result, "Ranked"); err != nil {
		logger.L().Error("export_failed", "err", err)
		fail(c, http.StatusInternalServerError, "could not write workbook")
		return
	}
	c.FileAttachment(path, "ranked_leads.xlsx")
}

// === Dashboard ===

func dashboardJSON(st dashboard.State) gin.H {
	return gin.H{
		"ok":        true,
		"ready":     st.Ready(),
		"filter_on": st.FilterOn(),
		"state":     st,
	}
}

func (a *app) showDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, dashboardJSON(a.session(c).State()))
}

func (a *app) toggleSort(c *gin.Context) {
	st := a.session(c).Apply(dashboard.State.ToggleSort)
	c.JSON(http.StatusOK, dashboardJSON(st))
}

func (a *app) toggleFilter(c *gin.Context) {
	st := a.session(c).Apply(dashboard.State.ToggleFilter)
	c.JSON(http.StatusOK, dashboardJSON(st))
}

func (a *app) setLocation(c *gin.Context) {
	var p models.GeoPoint
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		fail(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	sess := a.session(c)
	sess.Tracker.Set(p)
	c.JSON(http.StatusOK, dashboardJSON(sess.State()))
}

// === OCR ===

type parseRequest struct {
	ImageURI string   `json:"image_uri"`
	Lines    []string `json:"lines"`
}

func (a *app) parseOCR(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	fields, err := ocr.Capture(c.Request.Context(), ocr.StaticLines(req.Lines), req.ImageURI)
	if errors.Is(err, ocr.ErrNoText) {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "No text recognized", "fields": ocr.EmptyFields()})
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "fields": fields})
}

type editRequest struct {
	Fields []models.Field `json:"fields"`
	Index  int            `json:"index"`
	Value  string         `json:"value"`
}

func (a *app) editField(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	fields, err := ocr.UpdateField(req.Fields, req.Index, req.Value)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "fields": fields})
}

type saveRequest struct {
	ImageURI string         `json:"image_uri"`
	Fields   []models.Field `json:"fields"`
}

func (a *app) saveRecord(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	rec, err := a.records.Save(c.Request.Context(), req.ImageURI, req.Fields)
	if err != nil {
		metrics.OCRSavesTotal.WithLabelValues("error").Inc()
		logger.L().Error("ocr_save_failed", "err", err)
		fail(c, http.StatusInternalServerError, "could not save record")
		return
	}
	metrics.OCRSavesTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, gin.H{"ok": true, "record": rec})
}

func (a *app) listRecords(c *gin.Context) {
	records, err := a.records.List(c.Request.Context())
	if err != nil {
		logger.L().Error("ocr_list_failed", "err", err)
		fail(c, http.StatusInternalServerError, "could not read records")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "records": records})
}

// === Chat ===

func (a *app) chatSend(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	msgs, err := a.session(c).Chat.Send(c.Request.Context(), req.Text)
	if err != nil {
		fail(c, http.StatusBadGateway, "recommendation backend failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "messages": msgs})
}

func (a *app) chatHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "messages": a.session(c).Chat.History()})
}

// === Notifications ===

func (a *app) triggerNotification(c *gin.Context) {
	n, err := a.session(c).Notify.Trigger(c.Request.Context())
	if err != nil {
		logger.L().Warn("notification_publish_failed", "id", n.ID, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "notification": n, "published": err == nil})
}

func (a *app) pendingNotification(c *gin.Context) {
	n, ok := a.session(c).Notify.Pending()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"ok": true, "pending": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "pending": n})
}

func respondDecision(c *gin.Context, lead models.Lead, err error) {
	if errors.Is(err, notify.ErrNoPending) {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "lead": lead})
}

func (a *app) acceptNotification(c *gin.Context) {
	lead, err := a.session(c).Notify.Accept()
	respondDecision(c, lead, err)
}

func (a *app) rejectNotification(c *gin.Context) {
	sess := a.session(c)
	lead, err := sess.Notify.Reject()
	if err == nil {
		sess.Apply(func(st dashboard.State) dashboard.State { return st.Decline(lead) })
	}
	respondDecision(c, lead, err)
}

func (a *app) declinedLeads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "leads": a.session(c).Notify.Declined()})
}

// === Allocation jobs ===

func (a *app) runJob(c *gin.Context) {
	file, err := c.FormFile("input_file")
	if err != nil {
		fail(c, http.StatusBadRequest, "Please choose a file.")
		return
	}

	mode := c.PostForm("mode")
	if mode != "nearest" && mode != "radius" {
		fail(c, http.StatusBadRequest, "mode must be nearest or radius")
		return
	}
	meters, _ := strconv.ParseFloat(c.PostForm("meters"), 64)
	if mode == "radius" && meters <= 0 {
		fail(c, http.StatusBadRequest, "meters must be positive")
		return
	}

	inputPath := filepath.Join(a.cfg.UploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(file.Filename)))
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		fail(c, http.StatusInternalServerError, "Upload failed.")
		return
	}

	job := a.jobs.New()
	go processAllocation(job, a.catalog, inputPath, a.cfg.OutputDir, mode, meters)

	c.JSON(http.StatusOK, gin.H{"ok": true, "job_id": job.ID, "message": "Processing started..."})
}

func (a *app) jobLogs(c *gin.Context) {
	job := a.jobs.Get(c.Query("job_id"))
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "Job not found"})
		return
	}
	status, progress, logs, _, _ := job.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"logs":     logs,
		"status":   status,
		"progress": progress,
	})
}

func (a *app) jobStatus(c *gin.Context) {
	job := a.jobs.Get(c.Query("job_id"))
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}
	status, _, _, result, errMsg := job.Snapshot()
	res := gin.H{
		"ok":     true,
		"status": status,
		"error":  errMsg,
	}
	if result != nil {
		res["result"] = result
	}
	c.JSON(http.StatusOK, res)
}

func (a *app) downloadResult(c *gin.Context) {
	target := filepath.Join(a.cfg.OutputDir, filepath.Base(c.Param("filename")))
	if _, err := os.Stat(target); err != nil {
		c.String(http.StatusNotFound, "Result not found")
		return
	}
	c.FileAttachment(target, filepath.Base(target))
}
