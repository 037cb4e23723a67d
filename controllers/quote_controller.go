package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketdata_backend/services/reader"
	"marketdata_backend/services/store"
	"marketdata_backend/services/timeseries"

	"github.com/gin-gonic/gin"
)

// QuoteController serves quote and history reads.
type QuoteController struct {
	reader *reader.Reader
}

// NewQuoteController creates a new quote controller.
func NewQuoteController(r *reader.Reader) *QuoteController {
	return &QuoteController{reader: r}
}

// GetQuote handles GET /api/v1/quotes/:symbol
func (qc *QuoteController) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")

	quote, err := qc.reader.CurrentQuote(c.Request.Context(), symbol)
	if errors.Is(err, reader.ErrUnknownSymbol) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_symbol",
			"message": "Symbol is not in the configured universe",
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "no_data",
			"message": "No quote stored for this symbol yet",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

// GetHistory handles GET /api/v1/quotes/:symbol/history?from=&to=
func (qc *QuoteController) GetHistory(c *gin.Context) {
	symbol := c.Param("symbol")

	to := time.Now().UTC()
	from := to.Add(-timeseries.RetentionWindow)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": "from must be RFC3339",
			})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": "to must be RFC3339",
			})
			return
		}
		to = parsed
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "to must not be before from",
		})
		return
	}

	bars, err := qc.reader.History(c.Request.Context(), symbol, from, to)
	if errors.Is(err, reader.ErrUnknownSymbol) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_symbol",
			"message": "Symbol is not in the configured universe",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"from":   from,
		"to":     to,
		"count":  len(bars),
		"data":   bars,
	})
}

// GetLatestPoints handles GET /api/v1/quotes/:symbol/latest?n=
func (qc *QuoteController) GetLatestPoints(c *gin.Context) {
	symbol := c.Param("symbol")

	n := 10
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": "n must be a positive integer",
			})
			return
		}
		n = parsed
	}

	points, err := qc.reader.LatestPoints(c.Request.Context(), symbol, n)
	if errors.Is(err, reader.ErrUnknownSymbol) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_symbol",
			"message": "Symbol is not in the configured universe",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"count":  len(points),
		"data":   points,
	})
}

// GetUniverse handles GET /api/v1/symbols
func (qc *QuoteController) GetUniverse(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": qc.reader.Universe()})
}
