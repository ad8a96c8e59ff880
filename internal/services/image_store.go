package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/codyseavey/ygo-ripper/internal/config"
	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/storage"
)

const (
	// ImageKeyPrefix prefixes every persisted card image
	ImageKeyPrefix = "ygo-card-image-"

	jpegQuality   = 85
	dataURLPrefix = "data:image/jpeg;base64,"
)

var (
	placeholderFill   = color.RGBA{R: 0x5b, G: 0x3a, B: 0x1e, A: 0xff}
	placeholderBorder = color.RGBA{R: 0x2e, G: 0x1d, B: 0x0f, A: 0xff}
	placeholderGlyph  = color.RGBA{R: 0xe8, G: 0xd8, B: 0xb0, A: 0xff}
)

// ImageSize is a target presentation size in pixels
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s ImageSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ImageHandle is a card image rendered for one target size. Image holds the
// decoded pixels fitted inside the target; Width and Height are the target
// itself. Handles are shared between callers and never modified.
type ImageHandle struct {
	Key         string
	SourceURL   string
	Image       image.Image
	Width       int
	Height      int
	Placeholder bool
}

// ImageSink receives a handle once it is ready, e.g. a widget to draw into
type ImageSink interface {
	SetImage(h *ImageHandle)
}

// ImageFetcher downloads image bytes directly or through the backend proxy
type ImageFetcher interface {
	FetchImage(ctx context.Context, sourceURL string, viaProxy bool) ([]byte, error)
}

// persistedImage is the stored form of a rendered image
type persistedImage struct {
	DataURL    string    `json:"dataUrl"`
	InsertedAt time.Time `json:"insertedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ImageCacheStats summarizes the image caches
type ImageCacheStats struct {
	MemoryEntries     int `json:"memory_entries"`
	MaxEntries        int `json:"max_entries"`
	PersistentEntries int `json:"persistent_entries"`
	NegativeEntries   int `json:"negative_entries"`
	FailedCards       int `json:"failed_cards"`
}

// ImageStoreService renders card images with a memory LRU, a persistent
// tier, at most one download per key and a negative cache of broken URLs.
// Every load resolves: failures produce a placeholder of the requested size.
type ImageStoreService struct {
	cfg     config.ImageConfig
	fetcher ImageFetcher
	store   storage.Store
	memory  *lru.Cache[string, *ImageHandle]
	group   singleflight.Group
	now     func() time.Time

	mu         sync.Mutex
	proxyHosts []string
	negative   map[string]struct{}
	failedIDs  map[string]struct{}
	generation uint64
}

// NewImageStoreService creates the image store
func NewImageStoreService(cfg config.ImageConfig, fetcher ImageFetcher, store storage.Store) *ImageStoreService {
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = config.Defaults().Image.MaxEntries
	}
	memory, err := lru.New[string, *ImageHandle](cfg.MaxEntries)
	if err != nil {
		panic(err)
	}

	hosts := make([]string, 0, len(cfg.ProxyHosts))
	for _, h := range cfg.ProxyHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}

	return &ImageStoreService{
		cfg:        cfg,
		fetcher:    fetcher,
		store:      store,
		memory:     memory,
		now:        time.Now,
		proxyHosts: hosts,
		negative:   make(map[string]struct{}),
		failedIDs:  make(map[string]struct{}),
	}
}

// SetClock replaces the time source. Tests only.
func (s *ImageStoreService) SetClock(now func() time.Time) {
	s.now = now
}

// ImageCacheKey derives the cache key of a card image at a size. It is
// stable across runs.
func ImageCacheKey(cardID, sourceURL string, size ImageSize) string {
	return fmt.Sprintf("%016x_%016x_%s", xxhash.Sum64String(cardID), xxhash.Sum64String(sourceURL), size)
}

// LoadImage returns the card image at the requested size, rendering it into
// sink when one is given. It never fails; a broken image yields a
// placeholder. Loads run to completion even if ctx is cancelled.
func (s *ImageStoreService) LoadImage(ctx context.Context, cardID, sourceURL string, size ImageSize, sink ImageSink) *ImageHandle {
	size.Width = max(size.Width, 1)
	size.Height = max(size.Height, 1)
	key := ImageCacheKey(cardID, sourceURL, size)

	h := s.loadImage(ctx, key, cardID, sourceURL, size)
	if sink != nil {
		sink.SetImage(h)
	}
	return h
}

func (s *ImageStoreService) loadImage(ctx context.Context, key, cardID, sourceURL string, size ImageSize) *ImageHandle {
	if h, ok := s.memory.Get(key); ok {
		metrics.CacheHits.WithLabelValues("image").Inc()
		metrics.ImageLoads.WithLabelValues("memory").Inc()
		return h
	}
	metrics.CacheMisses.WithLabelValues("image").Inc()

	s.mu.Lock()
	_, broken := s.negative[sourceURL]
	gen := s.generation
	s.mu.Unlock()
	if broken || strings.TrimSpace(sourceURL) == "" {
		metrics.ImageLoads.WithLabelValues("placeholder").Inc()
		return placeholderHandle(key, sourceURL, size)
	}

	v, _, shared := s.group.Do(key, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx), key, cardID, sourceURL, size, gen), nil
	})
	if shared {
		metrics.ImageLoads.WithLabelValues("shared").Inc()
	}
	return v.(*ImageHandle)
}

// load runs once per key at a time: persistent tier, then download
func (s *ImageStoreService) load(ctx context.Context, key, cardID, sourceURL string, size ImageSize, gen uint64) *ImageHandle {
	if h, ok := s.loadPersisted(ctx, key, sourceURL, size); ok {
		metrics.ImageLoads.WithLabelValues("persistent").Inc()
		s.remember(key, h, gen)
		return h
	}

	h, dataURL, err := s.download(ctx, key, sourceURL, size)
	if err != nil {
		debugLog("IMAGE", "Placeholder for %s (%s): %v", cardID, sourceURL, err)
		metrics.ImageLoads.WithLabelValues("placeholder").Inc()
		s.markFailed(cardID, sourceURL, gen)
		return placeholderHandle(key, sourceURL, size)
	}

	metrics.ImageLoads.WithLabelValues("download").Inc()
	if s.remember(key, h, gen) {
		s.persist(ctx, key, dataURL)
	}
	return h
}

// remember inserts into the memory tier unless the caches were cleared
// since the load started
func (s *ImageStoreService) remember(key string, h *ImageHandle, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	if s.memory.Add(key, h) {
		metrics.CacheEvictions.WithLabelValues("image", "lru").Inc()
	}
	metrics.CacheEntries.WithLabelValues("image").Set(float64(s.memory.Len()))
	return true
}

func (s *ImageStoreService) markFailed(cardID, sourceURL string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.negative[sourceURL] = struct{}{}
	if cardID != "" {
		s.failedIDs[cardID] = struct{}{}
	}
}

func (s *ImageStoreService) loadPersisted(ctx context.Context, key, sourceURL string, size ImageSize) (*ImageHandle, bool) {
	if s.store == nil {
		return nil, false
	}
	storeKey := ImageKeyPrefix + key
	raw, ok, err := s.store.Get(ctx, storeKey)
	if err != nil {
		infoLog("IMAGE", "Failed to read %s: %v", storeKey, err)
		return nil, false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues("image_persistent").Inc()
		return nil, false
	}

	var p persistedImage
	if err := json.Unmarshal([]byte(raw), &p); err != nil || !s.now().Before(p.ExpiresAt) {
		s.deletePersisted(ctx, storeKey)
		metrics.CacheEvictions.WithLabelValues("image_persistent", "expired").Inc()
		return nil, false
	}

	img, err := decodeDataURL(p.DataURL)
	if err != nil {
		debugLog("IMAGE", "Dropping undecodable %s: %v", storeKey, err)
		s.deletePersisted(ctx, storeKey)
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("image_persistent").Inc()
	return &ImageHandle{
		Key:       key,
		SourceURL: sourceURL,
		Image:     fitImage(img, size),
		Width:     size.Width,
		Height:    size.Height,
	}, true
}

func (s *ImageStoreService) deletePersisted(ctx context.Context, storeKey string) {
	if err := s.store.Delete(ctx, storeKey); err != nil {
		infoLog("IMAGE", "Failed to delete %s: %v", storeKey, err)
	}
}

// download fetches, decodes and resizes the image and returns it with its
// JPEG data URL
func (s *ImageStoreService) download(ctx context.Context, key, sourceURL string, size ImageSize) (*ImageHandle, string, error) {
	viaProxy := s.needsProxy(sourceURL)
	route, timeout := "direct", s.cfg.DirectTimeout()
	if viaProxy {
		route, timeout = "proxy", s.cfg.ProxyTimeout()
	}

	dlCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	data, err := s.fetcher.FetchImage(dlCtx, sourceURL, viaProxy)
	metrics.ImageDownloadDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, "", fmt.Errorf("%s download: %w", route, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode: %w", err)
	}
	fitted := fitImage(img, size)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fitted, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode: %w", err)
	}

	h := &ImageHandle{
		Key:       key,
		SourceURL: sourceURL,
		Image:     fitted,
		Width:     size.Width,
		Height:    size.Height,
	}
	return h, dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *ImageStoreService) persist(ctx context.Context, key, dataURL string) {
	if s.store == nil {
		return
	}
	now := s.now()
	ttl := s.cfg.PersistentTTL()
	data, err := json.Marshal(persistedImage{DataURL: dataURL, InsertedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, ImageKeyPrefix+key, string(data), ttl); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			debugLog("IMAGE", "Quota exceeded, %s kept in memory only", key)
			return
		}
		infoLog("IMAGE", "Failed to persist %s: %v", key, err)
	}
}

// needsProxy reports whether the URL's host is one the backend proxies
func (s *ImageStoreService) needsProxy(sourceURL string) bool {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range s.proxyHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ClearCache empties the memory tier, the persisted images, the negative
// cache and failed card tracking. Loads still in flight finish but do not
// repopulate anything.
func (s *ImageStoreService) ClearCache(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	s.memory.Purge()
	s.negative = make(map[string]struct{})
	s.failedIDs = make(map[string]struct{})
	s.mu.Unlock()
	metrics.CacheEntries.WithLabelValues("image").Set(0)

	if s.store == nil {
		return
	}
	removed, err := storage.DeletePrefix(ctx, s.store, ImageKeyPrefix)
	if err != nil {
		infoLog("IMAGE", "Failed to clear persisted images: %v", err)
	}
	infoLog("IMAGE", "Cache cleared (%d persisted images removed)", removed)
}

// PreloadItem names one image to warm
type PreloadItem struct {
	CardID    string
	SourceURL string
}

// Preload loads images with bounded concurrency so later LoadImage calls hit
// memory. It returns how many ended as placeholders.
func (s *ImageStoreService) Preload(ctx context.Context, items []PreloadItem, size ImageSize) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.PreloadConcurrency, 1))

	var mu sync.Mutex
	placeholders := 0
	for _, item := range items {
		item := item
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if h := s.LoadImage(gctx, item.CardID, item.SourceURL, size, nil); h.Placeholder {
				mu.Lock()
				placeholders++
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	debugLog("IMAGE", "Preloaded %d images (%d placeholders)", len(items), placeholders)
	return placeholders, err
}

// Stats returns the image cache counters
func (s *ImageStoreService) Stats(ctx context.Context) ImageCacheStats {
	s.mu.Lock()
	stats := ImageCacheStats{
		MemoryEntries:   s.memory.Len(),
		MaxEntries:      s.cfg.MaxEntries,
		NegativeEntries: len(s.negative),
		FailedCards:     len(s.failedIDs),
	}
	s.mu.Unlock()

	if s.store != nil {
		if keys, err := s.store.Keys(ctx, ImageKeyPrefix); err == nil {
			stats.PersistentEntries = len(keys)
		}
	}
	return stats
}

// FitSize returns the size of a src image scaled to fit inside dst with its
// aspect ratio kept: a relatively wider source keeps the target width,
// otherwise the target height is kept.
func FitSize(srcW, srcH, dstW, dstH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return dstW, dstH
	}
	if srcW*dstH > dstW*srcH {
		return dstW, max(1, (dstW*srcH+srcW/2)/srcW)
	}
	return max(1, (dstH*srcW+srcH/2)/srcH), dstH
}

func fitImage(src image.Image, size ImageSize) image.Image {
	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), size.Width, size.Height)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func decodeDataURL(dataURL string) (image.Image, error) {
	i := strings.Index(dataURL, ";base64,")
	if !strings.HasPrefix(dataURL, "data:") || i < 0 {
		return nil, errors.New("not a base64 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(dataURL[i+len(";base64,"):])
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// placeholderHandle draws a card-shaped tile with a border and a "?" glyph
func placeholderHandle(key, sourceURL string, size ImageSize) *ImageHandle {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(placeholderBorder), image.Point{}, draw.Src)

	border := max(1, min(size.Width, size.Height)/25)
	inner := image.Rect(border, border, size.Width-border, size.Height-border)
	if !inner.Empty() {
		draw.Draw(img, inner, image.NewUniform(placeholderFill), image.Point{}, draw.Src)
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(placeholderGlyph), Face: face}
	glyph := "?"
	width := d.MeasureString(glyph).Ceil()
	d.Dot = fixed.P((size.Width-width)/2, (size.Height+face.Ascent-face.Descent)/2)
	d.DrawString(glyph)

	return &ImageHandle{
		Key:         key,
		SourceURL:   sourceURL,
		Image:       img,
		Width:       size.Width,
		Height:      size.Height,
		Placeholder: true,
	}
}
