package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/ygo-ripper/internal/models"
	"github.com/codyseavey/ygo-ripper/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var lob = models.CardSet{SetName: "Legend of Blue Eyes White Dragon", SetCode: "LOB", NumOfCards: 126, TCGDate: "2002-03-08"}

type cliBackend struct {
	mu         sync.Mutex
	pricePosts int
}

// newCLIEnv starts a pricing backend and points the CLI at it and at a
// fresh database
func newCLIEnv(t *testing.T) *cliBackend {
	t.Helper()
	b := &cliBackend{}

	router := gin.New()
	router.POST("/cards/price", func(c *gin.Context) {
		var req map[string]any
		_ = c.ShouldBindJSON(&req)
		b.mu.Lock()
		b.pricePosts++
		b.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
			"card_name":        "Red-Eyes Black Dragon",
			"card_number":      req["card_number"],
			"card_rarity":      req["card_rarity"],
			"booster_set_name": lob.SetName,
			"tcg_price":        "25.50",
			"tcg_market_price": 27,
		}})
	})
	router.GET("/card-sets/from-cache", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": []models.CardSet{lob}})
	})
	router.GET("/card-sets/search/:term", func(c *gin.Context) {
		term := strings.ToLower(c.Param("term"))
		data := []models.CardSet{}
		if strings.Contains(strings.ToLower(lob.SetName), term) || strings.EqualFold(lob.SetCode, term) {
			data = append(data, lob)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
	})
	router.GET("/card-sets/:set/cards", func(c *gin.Context) {
		if c.Param("set") != lob.SetName {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "set not cached"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": []models.CatalogCard{
			{ID: 74677422, Name: "Red-Eyes Black Dragon", CardSets: []models.CardPrinting{
				{SetName: lob.SetName, SetCode: "LOB-EN070", SetRarity: "Ultra Rare"},
			}},
			{ID: 46986414, Name: "Dark Magician", CardSets: []models.CardPrinting{
				{SetName: lob.SetName, SetCode: "LOB-EN005", SetRarity: "Ultra Rare"},
			}},
		}})
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	t.Setenv("YGO_API_URL", server.URL)
	t.Setenv("YGO_DATABASE_PATH", filepath.Join(t.TempDir(), "ripper.db"))
	t.Setenv("YGO_RETRY_BACKOFF_MILLIS", "1")
	return b
}

func (b *cliBackend) PricePosts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pricePosts
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd, cc := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	if cerr := cc.close(context.Background()); err == nil {
		err = cerr
	}
	return out.String(), err
}

func TestPriceCommandUsesPersistedCache(t *testing.T) {
	b := newCLIEnv(t)

	out, err := runCLI(t, "", "price", "LOB-EN070", "Ultra Rare")
	if err != nil {
		t.Fatalf("price error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "$26.25") || !strings.Contains(out, "backend") {
		t.Errorf("first lookup output:\n%s", out)
	}

	// a new process restores the snapshot flushed on exit
	out, err = runCLI(t, "", "price", "lob-en070", "ultra rare")
	if err != nil {
		t.Fatalf("price error = %v", err)
	}
	if !strings.Contains(out, "cache") {
		t.Errorf("second lookup should come from the cache:\n%s", out)
	}
	if n := b.PricePosts(); n != 1 {
		t.Errorf("backend price calls = %d, want 1", n)
	}

	if _, err := runCLI(t, "", "price", "LOB-EN070"); err == nil {
		t.Error("Expected an error without a rarity")
	}
}

func TestSetsCommand(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "", "sets")
	if err != nil {
		t.Fatalf("sets error = %v", err)
	}
	if !strings.Contains(out, "Legend of Blue Eyes White Dragon") || !strings.Contains(out, "126") {
		t.Errorf("sets output:\n%s", out)
	}

	out, err = runCLI(t, "", "sets", "--search", "metal raiders")
	if err != nil {
		t.Fatalf("sets --search error = %v", err)
	}
	if !strings.Contains(out, "No sets found") {
		t.Errorf("search output:\n%s", out)
	}

	out, err = runCLI(t, "", "cards", "lob")
	if err != nil {
		t.Fatalf("cards error = %v", err)
	}
	if !strings.Contains(out, "LOB-EN070") || !strings.Contains(out, "Dark Magician") {
		t.Errorf("cards output:\n%s", out)
	}
}

func TestRipThenExport(t *testing.T) {
	newCLIEnv(t)

	dictation := "red eyes black dragon\nkuriboh\nred eyes black dragon\n"
	out, err := runCLI(t, dictation, "rip", "LOB")
	if err != nil {
		t.Fatalf("rip error = %v\n%s", err, out)
	}
	for _, want := range []string{
		"+ Red-Eyes Black Dragon LOB-EN070 Ultra Rare (x1, auto",
		"+ Red-Eyes Black Dragon LOB-EN070 Ultra Rare (x2, auto",
		`- no card matches "kuriboh"`,
		"$ Red-Eyes Black Dragon Ultra Rare: $26.25",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rip output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "input closed") {
		t.Errorf("end of input should not be reported as an error:\n%s", out)
	}

	out, err = runCLI(t, "", "session", "export")
	if err != nil {
		t.Fatalf("session export error = %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1\n%s", len(rows), out)
	}
	got := rows[1]
	if got[0] != "Red-Eyes Black Dragon" || got[1] != "LOB-EN070" || got[4] != "2" || got[7] != "26.25" || got[8] != "52.50" {
		t.Errorf("exported row = %v", got)
	}

	out, err = runCLI(t, "", "session", "list")
	if err != nil || !strings.Contains(out, "ended") {
		t.Errorf("session list = %v\n%s", err, out)
	}
}

func TestSessionCommandsWithoutSessions(t *testing.T) {
	newCLIEnv(t)

	if _, err := runCLI(t, "", "session", "show"); !errors.Is(err, services.ErrSessionNotFound) {
		t.Errorf("session show error = %v, want ErrSessionNotFound", err)
	}
	if _, err := runCLI(t, "", "session", "end"); !errors.Is(err, services.ErrNoActiveSession) {
		t.Errorf("session end error = %v, want ErrNoActiveSession", err)
	}
	if _, err := runCLI(t, "", "session", "quantity", "abc", "many"); err == nil {
		t.Error("Expected an error for a non-numeric quantity")
	}
}

func TestCacheCommands(t *testing.T) {
	newCLIEnv(t)

	if _, err := runCLI(t, "", "price", "LOB-EN070", "Ultra Rare"); err != nil {
		t.Fatalf("price error = %v", err)
	}
	out, err := runCLI(t, "", "cache", "info")
	if err != nil {
		t.Fatalf("cache info error = %v", err)
	}
	if line := lineWith(out, "Price entries"); !strings.Contains(line, "1 / 1000") {
		t.Errorf("price entries = %q\n%s", line, out)
	}

	out, err = runCLI(t, "", "cache", "clear", "--prices")
	if err != nil {
		t.Fatalf("cache clear error = %v", err)
	}
	if !strings.Contains(out, "Price cache cleared") || strings.Contains(out, "Image cache cleared") {
		t.Errorf("cache clear output:\n%s", out)
	}

	out, _ = runCLI(t, "", "cache", "info")
	if line := lineWith(out, "Price entries"); !strings.Contains(line, "0 / 1000") {
		t.Errorf("price entries after clear = %q", line)
	}
}

func TestConfigSaveAndReset(t *testing.T) {
	newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "ripper.yaml")
	if err := os.WriteFile(path, []byte("voice:\n  autoConfirmThreshold: 70\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "", "--config", path, "config", "save"); err != nil {
		t.Fatalf("config save error = %v", err)
	}

	// saved settings apply without the file
	out, err := runCLI(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "autoConfirmThreshold: 70") {
		t.Errorf("config show output:\n%s", out)
	}

	if _, err := runCLI(t, "", "config", "reset"); err != nil {
		t.Fatalf("config reset error = %v", err)
	}
	out, _ = runCLI(t, "", "config", "show")
	if !strings.Contains(out, "autoConfirmThreshold: 85") {
		t.Errorf("config show after reset:\n%s", out)
	}
}

func lineWith(out, label string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, label) {
			return line
		}
	}
	return ""
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	got := renderTable(&buf, []string{"Card", "Qty"}, [][]string{{"Dark Magician", "2"}, {"Kuriboh"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(got, "Dark Magician") || !strings.Contains(got, "Kuriboh") {
		t.Errorf("renderTable() = %q", got)
	}
	// plain ASCII when not writing to a terminal
	if !strings.Contains(got, "+-") {
		t.Errorf("renderTable() should use ASCII borders off a terminal:\n%s", got)
	}
	if renderTable(&buf, nil, nil, nil) != "" {
		t.Error("renderTable() with no headers should be empty")
	}
}

func TestSessionRepriceAndRefresh(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "", "session", "reprice")
	if err != nil || !strings.Contains(out, "Updated 0 cards") {
		t.Errorf("session reprice = %v\n%s", err, out)
	}
	if _, err := runCLI(t, "", "session", "refresh", "missing"); !errors.Is(err, services.ErrCardNotFound) {
		t.Errorf("session refresh error = %v, want ErrCardNotFound", err)
	}
}
