package handler

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hanzidex/hanzidex/internal/models"
)

var exportHeader = []string{
	"item_id", "skill_code", "reviewed_at", "rating_label", "rating_value", "duration_ms", "experiment_id",
}

// renderCSV streams the ledger as a CSV attachment.
func (h *HTTPHandler) renderCSV(c *gin.Context, events []models.ReviewEvent) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="reviews.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	defer w.Flush()

	if err := w.Write(exportHeader); err != nil {
		return
	}
	for _, ev := range events {
		duration := ""
		if ev.DurationMs != nil {
			duration = strconv.Itoa(*ev.DurationMs)
		}
		experiment := ""
		if ev.ExperimentID != nil {
			experiment = *ev.ExperimentID
		}
		record := []string{
			strconv.FormatInt(ev.ItemID, 10),
			ev.SkillCode,
			ev.ReviewedAt.UTC().Format(time.RFC3339),
			ev.RatingLabel,
			strconv.Itoa(ev.RatingValue),
			duration,
			experiment,
		}
		if err := w.Write(record); err != nil {
			return
		}
	}
}
