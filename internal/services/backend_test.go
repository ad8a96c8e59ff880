package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/codyseavey/ygo-ripper/internal/config"
	"github.com/codyseavey/ygo-ripper/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBackend is an in-process pricing backend. The price route answers
// with priceResponse (or a default record) after delay.
type fakeBackend struct {
	server *httptest.Server

	mu            sync.Mutex
	pricePosts    int
	priceRequests []priceRequest
	imageRequests []string
	priceStatus   int
	priceResponse gin.H
	delay         time.Duration
	sets          []models.CardSet
	cards         map[string][]models.CatalogCard
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{priceStatus: http.StatusOK, cards: make(map[string][]models.CatalogCard)}

	router := gin.New()
	router.Use(cors.Default())

	router.POST("/cards/price", func(c *gin.Context) {
		var req priceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		fb.mu.Lock()
		fb.pricePosts++
		fb.priceRequests = append(fb.priceRequests, req)
		status, resp, delay := fb.priceStatus, fb.priceResponse, fb.delay
		fb.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if resp == nil {
			resp = gin.H{"success": true, "data": gin.H{
				"card_name":        req.CardName,
				"card_number":      req.CardNumber,
				"card_rarity":      req.CardRarity,
				"tcg_price":        "25.50",
				"tcg_market_price": 27,
				"scrape_success":   true,
			}}
		}
		c.JSON(status, resp)
	})

	router.GET("/cards/image", func(c *gin.Context) {
		src := c.Query("url")
		fb.mu.Lock()
		fb.imageRequests = append(fb.imageRequests, "proxy:"+src)
		fb.mu.Unlock()
		if strings.Contains(src, "missing") {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "image not found"})
			return
		}
		c.Data(http.StatusOK, "image/png", testPNG(t, 200, 300))
	})

	router.GET("/direct/:name", func(c *gin.Context) {
		fb.mu.Lock()
		fb.imageRequests = append(fb.imageRequests, "direct:"+c.Param("name"))
		fb.mu.Unlock()
		if c.Param("name") == "garbage.png" {
			c.Data(http.StatusOK, "image/png", []byte("not an image"))
			return
		}
		c.Data(http.StatusOK, "image/png", testPNG(t, 300, 200))
	})

	router.GET("/card-sets/from-cache", func(c *gin.Context) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"success": true, "data": fb.sets})
	})

	router.GET("/card-sets/search/:term", func(c *gin.Context) {
		term := strings.ToLower(c.Param("term"))
		fb.mu.Lock()
		defer fb.mu.Unlock()
		matches := []models.CardSet{}
		for _, s := range fb.sets {
			if strings.Contains(strings.ToLower(s.SetName), term) {
				matches = append(matches, s)
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": matches})
	})

	router.GET("/card-sets/:set/cards", func(c *gin.Context) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		cards, ok := fb.cards[c.Param("set")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "set not cached"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": cards})
	})

	fb.server = httptest.NewServer(router)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) URL() string {
	return fb.server.URL
}

func (fb *fakeBackend) PricePosts() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.pricePosts
}

func (fb *fakeBackend) ImageRequests() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.imageRequests...)
}

func (fb *fakeBackend) SetPriceResponse(status int, resp gin.H) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.priceStatus = status
	fb.priceResponse = resp
}

func (fb *fakeBackend) SetDelay(d time.Duration) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.delay = d
}

// closedURL returns the address of a server that is no longer listening
func closedURL(t *testing.T) string {
	t.Helper()
	s := httptest.NewServer(http.NotFoundHandler())
	url := s.URL
	s.Close()
	return url
}

func testConfig(apiBase string) config.Config {
	cfg := config.Defaults()
	cfg.APIURL = apiBase
	cfg.RetryBackoffMillis = 1
	cfg.RequestTimeoutMillis = 2000
	return cfg
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
