package statushttp

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/pkg/symbol"
	"github.com/nirre55/bot-final/internal/store/journal"
)

type Router struct {
	symbol   string
	status   StatusProvider
	ledger   LedgerReader
	history  CycleHistory
	journal  JournalReader
	logPaths map[string]string
	logNames []string
}

func NewRouter(cfg ServerConfig) *Router {
	names := make([]string, 0, len(cfg.LogPaths))
	for name, path := range cfg.LogPaths {
		if strings.TrimSpace(path) == "" || strings.TrimSpace(name) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Router{
		symbol:   symbol.Normalize(cfg.Symbol),
		status:   cfg.Status,
		ledger:   cfg.Ledger,
		history:  cfg.History,
		journal:  cfg.Journal,
		logPaths: cfg.LogPaths,
		logNames: names,
	}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/ledger", r.handleLedger)
	group.GET("/cycles", r.handleCycles)
	group.GET("/journal", r.handleJournal)
	group.GET("/logs", r.handleLogs)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.status.Status())
}

// symbolParam falls back to the traded symbol and accepts either the
// slash or the venue form.
func (r *Router) symbolParam(c *gin.Context) string {
	if s := strings.TrimSpace(c.Query("symbol")); s != "" {
		return symbol.Normalize(s)
	}
	return r.symbol
}

func limitParam(c *gin.Context, def, max int) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

func (r *Router) handleLedger(c *gin.Context) {
	if r.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loss-recovery ledger unavailable"})
		return
	}
	sym := r.symbolParam(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rec, err := r.ledger.Get(ctx, sym)
	if err != nil {
		logger.Errorf("[api] ledger lookup failed symbol=%s err=%v", sym, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleCycles(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cycle history unavailable"})
		return
	}
	sym := r.symbolParam(c)
	limit := limitParam(c, 50, 500)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	recs, err := r.history.ListCycles(ctx, sym, limit)
	if err != nil {
		logger.Errorf("[api] cycle history failed symbol=%s err=%v", sym, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "cycles": recs})
}

func (r *Router) handleJournal(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order journal unavailable"})
		return
	}
	q := journal.Query{
		Kind:     journal.Kind(strings.TrimSpace(c.Query("kind"))),
		ClientID: strings.TrimSpace(c.Query("client_id")),
		Limit:    limitParam(c, 100, 1000),
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		q.Since = since
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	entries, err := r.journal.List(ctx, q)
	if err != nil {
		logger.Errorf("[api] journal query failed err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (r *Router) handleLogs(c *gin.Context) {
	if len(r.logNames) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no log files configured"})
		return
	}
	name := strings.TrimSpace(c.Query("name"))
	path := strings.TrimSpace(r.logPaths[name])
	if path == "" {
		name = r.logNames[0]
		path = r.logPaths[name]
	}
	lines, err := readLastLines(path, limitParam(c, 200, 5000))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "name": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      name,
		"lines":     lines,
		"available": r.logNames,
	})
}

const maxLogLineSize = 1024 * 1024

func readLastLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	lines := make([]string, 0, limit)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
